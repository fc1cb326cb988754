// Package session implements the affect-streaming session: lifecycle phases,
// the tick-driven capture/encode/transmit loop, inbound classification
// handling, the rolling history and the observable facade.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"EMOTISENSE/go-client/internal/channel"
	"EMOTISENSE/go-client/internal/encoder"
	"EMOTISENSE/go-client/internal/history"
	"EMOTISENSE/go-client/internal/models"
)

var (
	// ErrNotIdle is returned by Start while a session is already running;
	// only Idle and Error are startable phases.
	ErrNotIdle = errors.New("session is not idle")

	// ErrNotStreaming is returned by Reset outside Live/NoSignal.
	ErrNotStreaming = errors.New("session is not streaming")
)

// Source yields raw frames. capture.Webcam and capture.Synthetic satisfy it.
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// SourceProvider acquires the capture device on Start. The session owns the
// returned Source and releases it on every exit path.
type SourceProvider func() (Source, error)

// Transport is the duplex channel to the inference peer. channel.Channel is
// the production implementation.
type Transport interface {
	Open() bool
	Send(v interface{}) error
	SendControl(typ string) error
	Incoming() <-chan []byte
	Err() error
	Close() error
}

// DialFunc opens the transport for one session.
type DialFunc func(ctx context.Context, sessionID string) (Transport, error)

// FrameEncoder converts a raw frame into a transmittable payload.
type FrameEncoder interface {
	Encode(img image.Image) (payload string, size int, err error)
}

// Config carries the session parameters. PeerURL, ClientID and Token are
// supplied by the authentication collaborator.
type Config struct {
	PeerURL     string
	ClientID    string
	Token       string
	FrameWidth  int
	FrameHeight int
	JPEGQuality int
	TickEvery   time.Duration
	HistorySize int
}

// Snapshot is the atomically observed session surface: no snapshot ever
// pairs a classification sample with a phase contradicting its
// face_detected flag.
type Snapshot struct {
	SessionID string
	Phase     models.Phase
	Latest    *models.ClassificationSample
	Aggregate models.Aggregate
	Received  int64
	Rate      float64
	PeerFPS   float64
	PeerMock  bool
}

// Session drives one capture+streaming lifecycle. Start, Stop and Reset are
// intended to be called from a single coordinating goroutine; internal state
// is additionally mutex-guarded so Snapshot may be read from anywhere.
type Session struct {
	cfg      Config
	provider SourceProvider
	dial     DialFunc
	enc      FrameEncoder
	ticks    <-chan time.Time // injected tick source, nil for a real ticker
	notify   func(Snapshot)
	meter    *RateMeter

	mu        sync.Mutex
	id        string
	phase     models.Phase
	latest    *models.ClassificationSample
	hist      *history.Ring
	source    Source
	transport Transport
	peerFPS   float64
	peerMock  bool

	stopTicks func()
	stopc     chan struct{}
	stopOnce  *sync.Once
	loopDone  chan struct{}
}

// Option tweaks session construction, mainly for tests.
type Option func(*Session)

// WithDialer replaces the websocket dialer.
func WithDialer(d DialFunc) Option {
	return func(s *Session) { s.dial = d }
}

// WithTicker replaces the internal ticker with an external tick source, so
// tests can drive the capture loop synchronously.
func WithTicker(ticks <-chan time.Time) Option {
	return func(s *Session) { s.ticks = ticks }
}

// WithEncoder replaces the frame encoder.
func WithEncoder(e FrameEncoder) Option {
	return func(s *Session) { s.enc = e }
}

func New(cfg Config, provider SourceProvider, opts ...Option) *Session {
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = 100 * time.Millisecond
	}
	s := &Session{
		cfg:      cfg,
		provider: provider,
		phase:    models.PhaseIdle,
		hist:     history.New(cfg.HistorySize),
		meter:    NewRateMeter(),
	}
	s.dial = func(ctx context.Context, sessionID string) (Transport, error) {
		return channel.Dial(ctx, channel.Config{
			BaseURL:   cfg.PeerURL,
			SessionID: sessionID,
			ClientID:  cfg.ClientID,
			Token:     cfg.Token,
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enc == nil {
		s.enc = encoder.New(cfg.FrameWidth, cfg.FrameHeight, cfg.JPEGQuality)
	}
	return s
}

// Notify registers the observer callback, invoked after every observable
// change with a consistent snapshot. Set it before Start. The callback must
// not block and must not call back into the session.
func (s *Session) Notify(fn func(Snapshot)) {
	s.notify = fn
}

// Start moves Idle -> Connecting: acquires the capture device, then opens
// the channel, then launches the run loop. Device acquisition failure ends
// in the error phase without touching the channel; dial failure releases
// the device. History is cleared at every Start. The error phase has no
// automatic retry, so Start is also the explicit restart out of it:
// resources were already released on the way in.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.phase != models.PhaseIdle && s.phase != models.PhaseError {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.id = uuid.NewString()
	s.phase = models.PhaseConnecting
	s.hist.Reset()
	s.latest = nil
	s.peerFPS = 0
	s.peerMock = false
	id := s.id
	s.mu.Unlock()
	s.emit()

	log.Printf("session %s: acquiring capture device", id)
	src, err := s.provider()
	if err != nil {
		s.toError()
		return fmt.Errorf("acquire capture source: %w", err)
	}

	log.Printf("session %s: connecting to peer", id)
	tr, err := s.dial(context.Background(), id)
	if err != nil {
		src.Close()
		s.toError()
		return fmt.Errorf("open channel: %w", err)
	}

	ticks := s.ticks
	var stopTicks func()
	if ticks == nil {
		t := time.NewTicker(s.cfg.TickEvery)
		ticks = t.C
		stopTicks = t.Stop
	}

	s.mu.Lock()
	s.source = src
	s.transport = tr
	s.stopTicks = stopTicks
	s.stopc = make(chan struct{})
	s.stopOnce = &sync.Once{}
	s.loopDone = make(chan struct{})
	stopc, done := s.stopc, s.loopDone
	s.mu.Unlock()

	log.Printf("session %s: channel open, awaiting first signal", id)
	go s.run(done, stopc, tr, src, ticks)
	return nil
}

// Stop is safe from any phase and always leaves the session Idle with the
// capture device released and the channel closed. No tick runs after Stop
// returns. History is preserved until Reset or the next Start.
func (s *Session) Stop() {
	s.mu.Lock()
	done := s.loopDone
	once := s.stopOnce
	stopc := s.stopc
	s.mu.Unlock()

	if done != nil {
		once.Do(func() { close(stopc) })
		<-done
	}
	s.teardown(models.PhaseIdle)
}

// Reset clears the history without tearing down the connection and asks the
// peer to reinitialize its temporal context. Only valid while streaming.
func (s *Session) Reset() error {
	s.mu.Lock()
	if !s.phase.Streaming() {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	tr := s.transport
	s.hist.Reset()
	s.mu.Unlock()
	s.emit()

	if err := tr.SendControl(models.TypeReset); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	return nil
}

// Snapshot returns the current observable surface.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Phase:     s.phase,
		Aggregate: s.hist.Aggregate(),
		Received:  s.meter.Total(),
		Rate:      s.meter.Rate(),
		PeerFPS:   s.peerFPS,
		PeerMock:  s.peerMock,
	}
	if s.latest != nil {
		latest := *s.latest
		snap.Latest = &latest
	}
	return snap
}

func (s *Session) emit() {
	if s.notify == nil {
		return
	}
	s.notify(s.Snapshot())
}

// run owns the streaming lifetime: ticks drive capture/encode/transmit,
// inbound messages drive phase and history. Everything funnels through this
// one goroutine, so messages apply strictly in arrival order.
func (s *Session) run(done chan struct{}, stopc chan struct{}, tr Transport, src Source, ticks <-chan time.Time) {
	defer close(done)
	for {
		select {
		case <-stopc:
			// explicit stop; Stop() runs the teardown after we exit
			return

		case <-ticks:
			if err := s.tick(tr, src); err != nil {
				log.Printf("session %s: transmit failed: %v", s.id, err)
				s.teardown(models.PhaseError)
				return
			}

		case data, ok := <-tr.Incoming():
			if !ok {
				if err := tr.Err(); err != nil {
					log.Printf("session %s: channel error: %v", s.id, err)
					s.teardown(models.PhaseError)
				} else {
					// implicit stop: peer closed, resources still released
					log.Printf("session %s: channel closed by peer", s.id)
					s.teardown(models.PhaseIdle)
				}
				return
			}
			s.handleMessage(data)
		}
	}
}

// tick runs the capture/transmit step. Frames are never queued: if the
// channel is not open the tick is skipped outright, and a capture or encode
// failure skips the tick without surfacing an error. Only a send failure is
// fatal to the session.
func (s *Session) tick(tr Transport, src Source) error {
	if !tr.Open() {
		return nil
	}
	img, err := src.Read()
	if err != nil {
		return nil
	}
	payload, _, err := s.enc.Encode(img)
	if err != nil {
		return nil
	}
	return tr.Send(models.FrameMessage{Frame: payload})
}

// handleMessage applies one inbound message: the face_detected flag moves
// the phase before the classification touches the latest sample or the
// history, so observers never see the two disagree. Malformed messages are
// dropped without any state change.
func (s *Session) handleMessage(data []byte) {
	msg, err := models.ParsePeerMessage(data)
	if err != nil {
		return
	}
	sample := msg.Sample()

	s.mu.Lock()
	if sample.FaceDetected {
		s.phase = models.PhaseLive
	} else {
		s.phase = models.PhaseNoSignal
	}
	s.latest = &sample
	s.hist.Append(sample)
	if msg.FPS > 0 {
		s.peerFPS = msg.FPS
	}
	s.peerMock = msg.Mock
	s.meter.Mark(time.Now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.notify != nil {
		s.notify(snap)
	}
}

// toError marks a failed start. Nothing is held at this point.
func (s *Session) toError() {
	s.mu.Lock()
	s.phase = models.PhaseError
	s.mu.Unlock()
	s.emit()
}

// teardown is the single release routine used on every exit path: explicit
// stop, peer close, channel error and transmit failure. It stops the
// ticker, closes the channel and releases the capture device, then settles
// on the final phase. Idempotent.
func (s *Session) teardown(final models.Phase) {
	s.mu.Lock()
	src := s.source
	tr := s.transport
	stopTicks := s.stopTicks
	s.source = nil
	s.transport = nil
	s.stopTicks = nil
	s.loopDone = nil
	changed := s.phase != final
	s.phase = final
	s.mu.Unlock()

	if stopTicks != nil {
		stopTicks()
	}
	if tr != nil {
		tr.Close()
	}
	if src != nil {
		src.Close()
	}
	if changed || src != nil {
		s.emit()
	}
}

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"EMOTISENSE/go-client/internal/capture"
	"EMOTISENSE/go-client/internal/config"
	"EMOTISENSE/go-client/internal/models"
	"EMOTISENSE/go-client/internal/session"
)

func main() {
	device := flag.Int("device", -1, "capture device id (overrides CAPTURE_DEVICE)")
	synthetic := flag.Bool("synthetic", false, "use a synthetic frame source instead of a camera")
	peerURL := flag.String("peer-url", "", "inference peer websocket URL (overrides PEER_URL)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *peerURL != "" {
		cfg.PeerURL = *peerURL
	}
	if *device >= 0 {
		cfg.DeviceID = *device
	}

	log.Println("Starting...")
	log.Printf("Peer: %s", cfg.PeerURLForLog())
	log.Printf("Frames: %dx%d quality=%d at %d fps", cfg.FrameWidth, cfg.FrameHeight, cfg.JPEGQuality, cfg.CaptureFPS)
	log.Printf("Environment: %s", cfg.Environment)

	provider := func() (session.Source, error) {
		if *synthetic {
			log.Println("Using synthetic frame source")
			return capture.NewSynthetic(2*cfg.FrameWidth, 2*cfg.FrameHeight), nil
		}
		return capture.OpenWebcam(cfg.DeviceID, 640, 480)
	}

	sess := session.New(session.Config{
		PeerURL:     cfg.PeerURL,
		ClientID:    cfg.ClientID,
		Token:       cfg.AccessToken,
		FrameWidth:  cfg.FrameWidth,
		FrameHeight: cfg.FrameHeight,
		JPEGQuality: cfg.JPEGQuality,
		TickEvery:   time.Second / time.Duration(cfg.CaptureFPS),
		HistorySize: cfg.HistorySize,
	}, provider)

	ended := make(chan models.Phase, 1)
	var (
		phaseMu   sync.Mutex
		lastPhase models.Phase
	)
	sess.Notify(func(snap session.Snapshot) {
		phaseMu.Lock()
		changed := snap.Phase != lastPhase
		prev := lastPhase
		if changed {
			lastPhase = snap.Phase
		}
		phaseMu.Unlock()
		if changed {
			log.Printf("phase: %s -> %s", prev, snap.Phase)
			if snap.Phase == models.PhaseError || snap.Phase == models.PhaseIdle {
				select {
				case ended <- snap.Phase:
				default:
				}
			}
		}
		if snap.Latest != nil && snap.Received%25 == 0 {
			log.Printf("received=%d rate=%.1f/s mean_intensity=%.2f top=%s peer_fps=%.1f",
				snap.Received, snap.Rate, snap.Aggregate.MeanIntensity,
				snap.Aggregate.TopLabel, snap.PeerFPS)
		}
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	if err := sess.Start(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	select {
	case <-done:
		log.Println("Shutting down...")
		sess.Stop()
	case phase := <-ended:
		if phase == models.PhaseError {
			log.Println("Session failed")
			os.Exit(1)
		}
		log.Println("Peer ended the session")
	}
	log.Println("Goodbye!")
}

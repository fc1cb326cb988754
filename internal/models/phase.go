package models

// Phase is the session lifecycle state. Exactly one phase is active at a
// time; Live and NoSignal both require an open channel and differ only in
// the face_detected flag of the most recent peer message.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseLive
	PhaseNoSignal
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseLive:
		return "live"
	case PhaseNoSignal:
		return "no_signal"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Streaming reports whether the phase allows the capture/transmit loop and
// reset control messages.
func (p Phase) Streaming() bool {
	return p == PhaseLive || p == PhaseNoSignal
}

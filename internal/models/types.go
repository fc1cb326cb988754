package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Affect labels the inference peer classifies against.
const (
	LabelAngry     = "angry"
	LabelDisgusted = "disgusted"
	LabelFearful   = "fearful"
	LabelHappy     = "happy"
	LabelNeutral   = "neutral"
	LabelSad       = "sad"
	LabelSurprised = "surprised"
	LabelCalm      = "calm"
	LabelStressed  = "stressed"
)

// Labels lists the closed affect set in a stable order.
var Labels = []string{
	LabelAngry, LabelDisgusted, LabelFearful, LabelHappy,
	LabelNeutral, LabelSad, LabelSurprised, LabelCalm, LabelStressed,
}

// Control message types carried in the optional "type" field.
const (
	TypeReset     = "reset"
	TypeKeepalive = "keepalive"
	TypePong      = "pong"
)

// FrameMessage is the outbound payload for one transmitted frame.
type FrameMessage struct {
	Frame string `json:"frame"`
}

// ControlMessage is sent client -> peer, e.g. {"type":"reset"}.
type ControlMessage struct {
	Type string `json:"type"`
}

// PeerMessage is one inbound message from the inference peer.
// FaceDetected is a pointer so a missing field can be told apart from false.
type PeerMessage struct {
	Type         string             `json:"type,omitempty"`
	FPS          float64            `json:"fps,omitempty"`
	FaceDetected *bool              `json:"face_detected"`
	Emotion      *string            `json:"emotion"`
	AllEmotions  map[string]float64 `json:"all_emotions"`
	Confidence   float64            `json:"confidence"`
	StressScore  float64            `json:"stress_score"`
	Mock         bool               `json:"mock"`
	Timestamp    int64              `json:"timestamp"`
}

var (
	// ErrMalformedMessage marks inbound payloads that are not JSON or are
	// missing face_detected on a non-control message. They are dropped.
	ErrMalformedMessage = errors.New("malformed peer message")

	// ErrControlMessage marks keepalive/pong messages. They are ignored.
	ErrControlMessage = errors.New("control peer message")
)

// ParsePeerMessage decodes one inbound channel message. Control messages
// return ErrControlMessage, anything unparseable or incomplete returns
// ErrMalformedMessage; neither may affect session state.
func ParsePeerMessage(data []byte) (PeerMessage, error) {
	var msg PeerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PeerMessage{}, ErrMalformedMessage
	}
	if msg.Type == TypeKeepalive || msg.Type == TypePong {
		return msg, ErrControlMessage
	}
	if msg.FaceDetected == nil {
		return PeerMessage{}, ErrMalformedMessage
	}
	return msg, nil
}

// ClassificationSample is one classification result, immutable once built.
type ClassificationSample struct {
	Timestamp    time.Time
	PrimaryLabel string
	Distribution map[string]float64
	Confidence   float64
	Intensity    float64
	FaceDetected bool
}

// Sample converts a valid peer message into a sample. A missing emotion
// becomes an empty label and a missing stress score counts as zero, so
// no-face messages still enter the history with intensity 0.
func (m PeerMessage) Sample() ClassificationSample {
	s := ClassificationSample{
		Timestamp:    time.Now(),
		Confidence:   m.Confidence,
		Intensity:    m.StressScore,
		FaceDetected: m.FaceDetected != nil && *m.FaceDetected,
	}
	if m.Timestamp > 0 {
		s.Timestamp = time.UnixMilli(m.Timestamp)
	}
	if m.Emotion != nil {
		s.PrimaryLabel = *m.Emotion
	}
	if m.AllEmotions != nil {
		s.Distribution = make(map[string]float64, len(m.AllEmotions))
		for label, weight := range m.AllEmotions {
			s.Distribution[label] = weight
		}
	}
	return s
}

// Aggregate is the derived view over the current history buffer.
type Aggregate struct {
	MeanIntensity float64 `json:"mean_intensity"`
	TopLabel      string  `json:"top_label"`
	Count         int     `json:"count"`
}

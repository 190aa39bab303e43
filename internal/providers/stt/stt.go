package stt

import "context"

// Segment is one recognizer result. Interim segments may be revised; a final
// segment is stable and safe to treat as a completed utterance.
type Segment struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

type Provider interface {
	// StreamTranscribe consumes raw PCM chunks from audio until the channel
	// closes or ctx is cancelled, and emits segments as they arrive.
	StreamTranscribe(ctx context.Context, audio <-chan []byte, language string) (<-chan Segment, <-chan error)
	Close() error
}

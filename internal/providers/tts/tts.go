package tts

import "context"

type Provider interface {
	// StreamSpeak returns a stream of raw PCM chunks for the given text.
	StreamSpeak(ctx context.Context, text string) (audio <-chan []byte, errs <-chan error)
	Close() error
}

package transport

import "context"

type EventKind int

const (
	ParticipantJoined EventKind = iota
	ParticipantLeft
)

// Event is a participant lifecycle notification from the media room.
type Event struct {
	Kind          EventKind
	ParticipantID string
}

// Transport is the engine's view of a media room: inbound participant audio,
// outbound synthesized audio, and participant lifecycle events. Connect has a
// bounded handshake; the session is torn down if it does not complete in time.
type Transport interface {
	Connect(ctx context.Context) error
	// AudioIn delivers raw PCM from the remote participant. The channel
	// closes when the room connection ends.
	AudioIn() <-chan []byte
	WriteAudio(ctx context.Context, pcm []byte) error
	Events() <-chan Event
	Close() error
}

package rooms

import "context"

// Room is one provisioned media room. Rooms are single-use: one human, one
// agent, short expiry.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Provider interface {
	CreateRoom(ctx context.Context, name string) (*Room, error)
	// CreateMeetingToken mints a join credential scoped to one room. Tokens
	// are never reused across sessions.
	CreateMeetingToken(ctx context.Context, roomName string, owner bool) (string, error)
	DeleteRoom(ctx context.Context, name string) error
}

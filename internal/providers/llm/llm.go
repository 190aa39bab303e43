package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role    string
	Content string
}

type Provider interface {
	// StreamChat returns a stream of text chunks (incremental). The turn slice
	// carries at most one system turn, always first.
	StreamChat(ctx context.Context, turns []Turn) (chunks <-chan string, errs <-chan error)
	Close() error
}

package pipeline

import "sync"

const DefaultMaxTurns = 20

type Turn struct {
	Role    string
	Content string
}

// Conversation owns the canonical turn history for one session. Turn 0 is
// always the single system turn; the total count never exceeds the configured
// maximum. The augmenter rewrites the system turn concurrently with the
// engine appending and snapshotting, so every access goes through the mutex.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
	max   int
}

func NewConversation(systemPrompt string, maxTurns int) *Conversation {
	if maxTurns < 2 {
		maxTurns = DefaultMaxTurns
	}
	return &Conversation{
		turns: []Turn{{Role: RoleSystem, Content: systemPrompt}},
		max:   maxTurns,
	}
}

// AddTurn appends a user or assistant turn, trimming the oldest non-system
// turns when the window overflows. The system turn at index 0 is always kept.
func (c *Conversation) AddTurn(role, content string) {
	if role == RoleSystem {
		// the system turn is replaced, never appended
		c.ReplaceSystemPrompt(content)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content})
	if len(c.turns) > c.max {
		keep := c.max - 1
		trimmed := make([]Turn, 0, c.max)
		trimmed = append(trimmed, c.turns[0])
		trimmed = append(trimmed, c.turns[len(c.turns)-keep:]...)
		c.turns = trimmed
	}
}

func (c *Conversation) ReplaceSystemPrompt(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[0] = Turn{Role: RoleSystem, Content: content}
}

// Snapshot returns an immutable copy for the generator, so an augmenter
// write landing mid-generation cannot corrupt a request already in flight.
func (c *Conversation) Snapshot() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

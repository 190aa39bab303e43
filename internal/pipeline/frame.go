package pipeline

// Roles used in conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ControlKind int

const (
	ControlStart ControlKind = iota
	ControlEnd
	ControlCancel
)

// Frame is the unit of data moving between pipeline stages. Frames are
// immutable once produced; ownership passes to the queue feeding the next
// stage.
type Frame interface{ frame() }

// AudioChunk is raw PCM tagged with the assistant turn that produced it, so
// the output stage can drop audio belonging to a cancelled turn.
type AudioChunk struct {
	PCM        []byte
	SampleRate int
	Turn       int64
}

type TranscriptSegment struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

type TextUtterance struct {
	Text string
	Role string
	Turn int64
}

type Control struct {
	Kind ControlKind
}

func (AudioChunk) frame()        {}
func (TranscriptSegment) frame() {}
func (TextUtterance) frame()     {}
func (Control) frame()           {}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/llm"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/stt"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/tts"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/transport"
)

var (
	// ErrAdapterUnavailable means a required capability credential or client
	// is missing; the engine must not run half-initialized.
	ErrAdapterUnavailable = errors.New("pipeline: required adapter unavailable")

	// ErrPipelineFatal ends this session's engine without touching the host
	// process or other sessions.
	ErrPipelineFatal = errors.New("pipeline: fatal")
)

const (
	maxConsecutiveFailures = 3

	synthQueueSize = 8
	outQueueSize   = 32
	audioInSize    = 64

	maxSentenceLen = 240
)

const openingInstruction = "The participant has just joined the call. Greet them briefly and invite them to speak."

// Config wires one engine. Recognizer, Generator, Synthesizer, and Transport
// are required.
type Config struct {
	SessionID  string
	Identity   string
	Language   string
	SampleRate int

	Recognizer  stt.Provider
	Generator   llm.Provider
	Synthesizer tts.Provider
	Transport   transport.Transport

	Conv      *Conversation
	Augmenter *Augmenter
	Log       *logrus.Entry

	// OnReady fires once when the room connection is established.
	OnReady func()
	// OnActivity fires on participant events and meaningful frame flow.
	OnActivity func()
}

// Engine runs one session's fixed stage chain:
// input → recognize → aggregate(user) → generate → aggregate(assistant) →
// synthesize → output. Stages are goroutines joined by bounded queues.
type Engine struct {
	cfg Config
	log *logrus.Entry

	synthQ *Queue
	outQ   *Queue

	mu         sync.Mutex
	turnSeq    int64
	turnCtx    context.Context
	turnCancel context.CancelFunc
	lastFinal  string
	failures   int

	fatalc  chan error
	endOnce sync.Once
	ended   chan struct{}
	exited  chan struct{}
}

func New(cfg Config) (*Engine, error) {
	if cfg.Recognizer == nil || cfg.Generator == nil || cfg.Synthesizer == nil || cfg.Transport == nil {
		return nil, ErrAdapterUnavailable
	}
	if cfg.Conv == nil {
		cfg.Conv = NewConversation("", DefaultMaxTurns)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.New())
	}
	return &Engine{
		cfg:    cfg,
		log:    cfg.Log,
		synthQ: NewQueue(synthQueueSize),
		outQ:   NewQueue(outQueueSize),
		fatalc: make(chan error, 1),
		ended:  make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// End is idempotent and safe from any goroutine: the normal end path, the
// participant-left event, and the idle sweep all converge here.
func (e *Engine) End() {
	e.endOnce.Do(func() { close(e.ended) })
}

// Done closes when Run has returned. Engine exit is the only signal the
// registry needs to reclaim the session's slot.
func (e *Engine) Done() <-chan struct{} { return e.exited }

// Cancel flushes any in-flight generation and synthesis (barge-in). Audio
// already queued for the cancelled turn is dropped by the output stage.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelTurnLocked()
	e.mu.Unlock()
}

func (e *Engine) Run(ctx context.Context) (err error) {
	defer close(e.exited)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-e.ended:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := e.cfg.Transport.Connect(runCtx); err != nil {
		e.release()
		return fmt.Errorf("connect room: %w", err)
	}
	defer e.release()

	if e.cfg.OnReady != nil {
		e.cfg.OnReady()
	}
	e.log.Info("pipeline: engine running")

	var wg sync.WaitGroup
	stage := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	audioIn := make(chan []byte, audioInSize)
	stage(func() { e.inputLoop(runCtx, audioIn) })
	stage(func() { e.recognizeLoop(runCtx, audioIn) })
	stage(func() { e.synthesizeLoop(runCtx) })
	stage(func() { e.outputLoop(runCtx) })
	stage(func() { e.eventLoop(runCtx) })

	select {
	case err = <-e.fatalc:
		e.log.WithError(err).Error("pipeline: fatal error, tearing down engine")
	case <-runCtx.Done():
	}

	e.End()
	cancel()
	wg.Wait()
	e.log.Info("pipeline: engine stopped")
	return err
}

func (e *Engine) release() {
	e.mu.Lock()
	e.cancelTurnLocked()
	e.mu.Unlock()
	_ = e.cfg.Transport.Close()
	_ = e.cfg.Recognizer.Close()
	_ = e.cfg.Generator.Close()
	_ = e.cfg.Synthesizer.Close()
}

// inputLoop forwards room audio into the recognizer's bounded inbound queue.
func (e *Engine) inputLoop(ctx context.Context, audioIn chan<- []byte) {
	defer close(audioIn)
	in := e.cfg.Transport.AudioIn()
	for {
		select {
		case <-ctx.Done():
			return
		case pcm, ok := <-in:
			if !ok {
				// room connection ended underneath us
				e.End()
				return
			}
			select {
			case audioIn <- pcm:
			case <-ctx.Done():
				return
			}
		}
	}
}

// recognizeLoop consumes the recognizer's segment stream, reopening it after
// a stream error so one failed call never kills the conversation.
func (e *Engine) recognizeLoop(ctx context.Context, audioIn <-chan []byte) {
	for ctx.Err() == nil {
		segs, errs := e.cfg.Recognizer.StreamTranscribe(ctx, audioIn, e.cfg.Language)
		for seg := range segs {
			if seg.IsFinal {
				e.onUtteranceFinal(ctx, seg.Text)
			}
		}
		if err := firstErr(errs); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.noteFailure("recognize", err)
			continue
		}
		// clean end: the audio input closed
		return
	}
}

// onUtteranceFinal accepts a final transcript as a new user turn. Repeated
// identical finals are ignored so a recognizer retry cannot double-trigger
// generation. A new turn while a prior one is in flight is a barge-in: the
// stale turn's generation and synthesis are cancelled under the same lock
// that opens the new turn, so the two can never interleave.
func (e *Engine) onUtteranceFinal(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	e.mu.Lock()
	if text == e.lastFinal {
		e.mu.Unlock()
		e.log.Debug("pipeline: duplicate final transcript ignored")
		return
	}
	e.lastFinal = text
	e.cancelTurnLocked()
	turn, tctx := e.beginTurnLocked(ctx)
	e.mu.Unlock()

	e.cfg.Conv.AddTurn(RoleUser, text)
	e.touch()
	e.log.WithField("turn", turn).Info("pipeline: user utterance accepted")

	e.cfg.Augmenter.Augment(text)
	go e.generate(tctx, turn, false)
}

// openConversation starts the opening utterance as a normal generated turn,
// gated on the participant-joined readiness event.
func (e *Engine) openConversation(ctx context.Context) {
	e.mu.Lock()
	if e.turnSeq > 0 {
		e.mu.Unlock()
		return
	}
	turn, tctx := e.beginTurnLocked(ctx)
	e.mu.Unlock()

	go e.generate(tctx, turn, true)
}

func (e *Engine) beginTurnLocked(parent context.Context) (int64, context.Context) {
	e.turnSeq++
	tctx, cancel := context.WithCancel(parent)
	e.turnCtx = tctx
	e.turnCancel = cancel
	return e.turnSeq, tctx
}

func (e *Engine) cancelTurnLocked() {
	if e.turnCancel != nil {
		e.turnCancel()
		e.turnCancel = nil
		e.turnCtx = nil
	}
}

func (e *Engine) currentTurn() (int64, context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnSeq, e.turnCtx
}

// generate streams the reply for one turn, handing sentence-sized utterances
// to the synthesis queue as they complete. The full reply is recorded as the
// assistant turn only if the turn survives to the end of the stream.
func (e *Engine) generate(ctx context.Context, turn int64, opening bool) {
	turns := toChat(e.cfg.Conv.Snapshot())
	if opening {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: openingInstruction})
	}

	chunks, errs := e.cfg.Generator.StreamChat(ctx, turns)

	var reply, sentence strings.Builder
	flush := func() bool {
		text := strings.TrimSpace(sentence.String())
		sentence.Reset()
		if text == "" {
			return true
		}
		return e.synthQ.Push(ctx, TextUtterance{Text: text, Role: RoleAssistant, Turn: turn}) == nil
	}

	for chunk := range chunks {
		reply.WriteString(chunk)
		sentence.WriteString(chunk)
		if sentenceBoundary(sentence.String()) {
			if !flush() {
				return
			}
		}
	}
	if err := firstErr(errs); err != nil {
		if ctx.Err() == nil {
			e.noteFailure("generate", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	if !flush() {
		return
	}

	full := strings.TrimSpace(reply.String())
	if full == "" {
		return
	}
	e.onGeneratedText(full)
}

func (e *Engine) onGeneratedText(text string) {
	e.cfg.Conv.AddTurn(RoleAssistant, text)
	e.resetFailures()
	e.touch()
}

// synthesizeLoop turns queued utterances into audio frames. Text belonging
// to a turn that is no longer current never reaches the synthesizer.
func (e *Engine) synthesizeLoop(ctx context.Context) {
	for {
		f, err := e.synthQ.Pop(ctx)
		if err != nil {
			return
		}
		u, ok := f.(TextUtterance)
		if !ok {
			continue
		}

		cur, tctx := e.currentTurn()
		if u.Turn != cur || tctx == nil || tctx.Err() != nil {
			continue
		}

		audio, errs := e.cfg.Synthesizer.StreamSpeak(tctx, u.Text)
		for pcm := range audio {
			chunk := AudioChunk{PCM: pcm, SampleRate: e.cfg.SampleRate, Turn: u.Turn}
			if err := e.outQ.Push(tctx, chunk); err != nil {
				break
			}
		}
		if err := firstErr(errs); err != nil && tctx.Err() == nil {
			e.noteFailure("synthesize", err)
		}
	}
}

// outputLoop writes audio to the room. This is the one stage allowed to drop
// frames, and only frames tagged with a cancelled turn.
func (e *Engine) outputLoop(ctx context.Context) {
	for {
		f, err := e.outQ.Pop(ctx)
		if err != nil {
			return
		}
		c, ok := f.(AudioChunk)
		if !ok {
			continue
		}

		cur, _ := e.currentTurn()
		if c.Turn != cur {
			continue
		}
		if err := e.cfg.Transport.WriteAudio(ctx, c.PCM); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.noteFailure("output", err)
			continue
		}
		e.touch()
	}
}

func (e *Engine) eventLoop(ctx context.Context) {
	events := e.cfg.Transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.touch()
			switch ev.Kind {
			case transport.ParticipantJoined:
				e.log.WithField("participant", ev.ParticipantID).Info("pipeline: participant joined")
				e.openConversation(ctx)
			case transport.ParticipantLeft:
				e.log.WithField("participant", ev.ParticipantID).Info("pipeline: participant left, ending")
				e.End()
				return
			}
		}
	}
}

// noteFailure records one adapter failure. The turn is abandoned and the
// pipeline keeps listening; three consecutive failures escalate to fatal.
func (e *Engine) noteFailure(stage string, err error) {
	e.log.WithError(err).WithField("stage", stage).Warn("pipeline: adapter call failed, turn abandoned")
	e.mu.Lock()
	e.failures++
	n := e.failures
	e.mu.Unlock()
	if n >= maxConsecutiveFailures {
		select {
		case e.fatalc <- fmt.Errorf("%w: %d consecutive adapter failures: %v", ErrPipelineFatal, n, err):
		default:
		}
	}
}

func (e *Engine) resetFailures() {
	e.mu.Lock()
	e.failures = 0
	e.mu.Unlock()
}

func (e *Engine) touch() {
	if e.cfg.OnActivity != nil {
		e.cfg.OnActivity()
	}
}

func toChat(turns []Turn) []llm.Turn {
	out := make([]llm.Turn, len(turns))
	for i, t := range turns {
		out[i] = llm.Turn{Role: t.Role, Content: t.Content}
	}
	return out
}

func sentenceBoundary(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	if len(s) >= maxSentenceLen {
		return true
	}
	switch s[len(s)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

func firstErr(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

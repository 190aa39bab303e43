package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/config"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/logger"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/pipeline"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/llm"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/retrieval"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/stt"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/tts"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/registry"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/transport"
)

// EngineLauncher builds per-session vendor adapters and runs one isolated
// pipeline engine per launch. Sessions share nothing but the registry, so a
// stalled engine cannot block another conversation.
type EngineLauncher struct {
	cfg       *config.App
	retriever retrieval.Retriever
	reg       *registry.Registry
	log       *logrus.Logger
}

func NewEngineLauncher(cfg *config.App, retriever retrieval.Retriever, reg *registry.Registry, log *logrus.Logger) *EngineLauncher {
	return &EngineLauncher{cfg: cfg, retriever: retriever, reg: reg, log: log}
}

func (l *EngineLauncher) Launch(ctx context.Context, sess *registry.Session, roomURL, agentToken string) (registry.EngineHandle, error) {
	slog := logger.ForSession(l.log, sess.ID, sess.Identity)

	recognizer, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := llm.NewVertexGemini(ctx, l.cfg.GoogleProjectID, l.cfg.GoogleLocation, l.cfg.GeminiModel)
	if err != nil {
		_ = recognizer.Close()
		return nil, err
	}
	synthesizer := tts.NewCartesia(l.cfg.CartesiaAPIKey, l.cfg.CartesiaVoiceID, l.cfg.CartesiaWSURL)
	tr := transport.NewWSClient(roomURL, agentToken, slog)

	conv := pipeline.NewConversation(l.cfg.PersonaPrompt, l.cfg.ContextMaxTurns)
	aug := &pipeline.Augmenter{
		Retriever:  l.retriever,
		Conv:       conv,
		BasePrompt: l.cfg.PersonaPrompt,
		UserID:     sess.Identity,
		Deadline:   l.cfg.AugmentDeadline,
		Log:        slog,
	}

	identity := sess.Identity
	eng, err := pipeline.New(pipeline.Config{
		SessionID:   sess.ID,
		Identity:    identity,
		Recognizer:  recognizer,
		Generator:   generator,
		Synthesizer: synthesizer,
		Transport:   tr,
		Conv:        conv,
		Augmenter:   aug,
		Log:         slog,
		OnReady:     func() { l.reg.Activate(identity) },
		OnActivity:  func() { l.reg.Touch(identity) },
	})
	if err != nil {
		_ = recognizer.Close()
		_ = generator.Close()
		return nil, err
	}

	go func() {
		if err := eng.Run(context.Background()); err != nil {
			slog.WithError(err).Error("voice: engine exited with error")
		}
	}()
	return eng, nil
}

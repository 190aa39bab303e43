package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/registry"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/rooms"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/utils"
)

type StartResult struct {
	SessionID string `json:"session_id"`
	RoomName  string `json:"room_name"`
	RoomURL   string `json:"room_url"`
	Token     string `json:"token"`
}

type Health struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	MaxSessions    int    `json:"max_sessions"`
}

// Launcher builds and starts one pipeline engine bound to a room. The
// returned handle's Done channel closes when the engine exits, clean or not.
type Launcher interface {
	Launch(ctx context.Context, sess *registry.Session, roomURL, agentToken string) (registry.EngineHandle, error)
}

type VoiceService interface {
	Start(ctx context.Context, identity string) (*StartResult, error)
	End(ctx context.Context, identity string) error
	Health(ctx context.Context) Health
}

type voiceService struct {
	reg      *registry.Registry
	rooms    rooms.Provider
	launcher Launcher
	log      *logrus.Logger
}

func NewVoiceService(reg *registry.Registry, rp rooms.Provider, launcher Launcher, log *logrus.Logger) VoiceService {
	return &voiceService{reg: reg, rooms: rp, launcher: launcher, log: log}
}

func (s *voiceService) Start(ctx context.Context, identity string) (*StartResult, error) {
	const op = "VoiceService.Start"

	if identity == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "identity is required", nil)
	}

	sess, err := s.reg.TryAdmit(identity)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.CreateRoom(ctx, roomName(identity))
	if err != nil {
		s.reg.ReleaseSession(sess)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to provision room", err)
	}

	userToken, err := s.rooms.CreateMeetingToken(ctx, room.Name, true)
	if err != nil {
		s.cleanup(sess, room.Name)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to mint access token", err)
	}
	agentToken, err := s.rooms.CreateMeetingToken(ctx, room.Name, false)
	if err != nil {
		s.cleanup(sess, room.Name)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to mint access token", err)
	}

	sess.BindRoom(room.Name, room.URL)

	// The engine outlives this request, so it is not tied to the request ctx.
	handle, err := s.launcher.Launch(context.Background(), sess, room.URL, agentToken)
	if err != nil {
		s.cleanup(sess, room.Name)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to launch pipeline engine", err)
	}
	sess.BindEngine(handle)

	// Engine exit is the sole reclaim signal: release the slot and retire the
	// room whether the engine ended cleanly or crashed.
	go func() {
		<-handle.Done()
		s.reg.ReleaseSession(sess)
		name, _ := sess.Room()
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.rooms.DeleteRoom(dctx, name); err != nil {
			s.log.WithError(err).WithField("room", name).Warn("voice: room cleanup failed")
		}
	}()

	s.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"identity":   identity,
		"room":       room.Name,
	}).Info("voice: session started")

	return &StartResult{
		SessionID: sess.ID,
		RoomName:  room.Name,
		RoomURL:   room.URL,
		Token:     userToken,
	}, nil
}

// End is idempotent: ending an identity with no live session succeeds.
func (s *voiceService) End(ctx context.Context, identity string) error {
	const op = "VoiceService.End"

	if identity == "" {
		return utils.E(utils.CodeInvalidArgument, op, "identity is required", nil)
	}

	sess, ok := s.reg.Get(identity)
	if !ok {
		return nil
	}

	sess.MarkEnding()
	if h := sess.Engine(); h != nil {
		h.End() // the exit watcher releases the slot and deletes the room
		return nil
	}

	// No engine bound yet: reclaim directly.
	s.reg.ReleaseSession(sess)
	if name, _ := sess.Room(); name != "" {
		if err := s.rooms.DeleteRoom(ctx, name); err != nil {
			s.log.WithError(err).WithField("room", name).Warn("voice: room cleanup failed")
		}
	}
	return nil
}

func (s *voiceService) Health(ctx context.Context) Health {
	if n := s.reg.Reconcile(); n > 0 {
		s.log.WithField("reclaimed", n).Info("voice: reconciled dead sessions")
	}
	return Health{
		Status:         "ok",
		ActiveSessions: s.reg.Len(),
		MaxSessions:    s.reg.Max(),
	}
}

func (s *voiceService) cleanup(sess *registry.Session, roomName string) {
	s.reg.ReleaseSession(sess)
	dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.rooms.DeleteRoom(dctx, roomName); err != nil {
		s.log.WithError(err).WithField("room", roomName).Warn("voice: room cleanup failed")
	}
}

// roomName builds a unique single-use room name, ex: voice-u1a2b3c4-1693400000-9f13ab.
func roomName(identity string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, identity)
	if len(id) > 8 {
		id = id[:8]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("voice-%s-%d-%s", strings.ToLower(id), time.Now().Unix(), suffix)
}

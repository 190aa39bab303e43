package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const cartesiaVersion = "2024-06-10"

type Cartesia struct {
	APIKey  string
	VoiceID string
	WSURL   string

	ModelID    string
	SampleRate int
}

func NewCartesia(apiKey, voiceID, wsURL string) *Cartesia {
	if wsURL == "" {
		wsURL = "wss://api.cartesia.ai/tts/websocket"
	}
	return &Cartesia{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		WSURL:      wsURL,
		ModelID:    "sonic-english",
		SampleRate: 16000,
	}
}

func (c *Cartesia) Close() error { return nil }

type cartesiaServerMsg struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

func (c *Cartesia) StreamSpeak(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	out := make(chan []byte, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		u := c.WSURL + "?api_key=" + url.QueryEscape(c.APIKey) + "&cartesia_version=" + cartesiaVersion
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()

		// closing the conn is what unblocks ReadJSON when the turn is cancelled
		finished := make(chan struct{})
		defer close(finished)
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-finished:
			}
		}()

		req := map[string]any{
			"context_id": uuid.NewString(),
			"model_id":   c.ModelID,
			"transcript": text,
			"voice":      map[string]any{"mode": "id", "id": c.VoiceID},
			"output_format": map[string]any{
				"container":   "raw",
				"encoding":    "pcm_s16le",
				"sample_rate": c.SampleRate,
			},
		}
		if err := conn.WriteJSON(req); err != nil {
			if ctx.Err() == nil {
				errs <- err
			}
			return
		}

		for {
			var msg cartesiaServerMsg
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}

			switch msg.Type {
			case "chunk":
				b, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					errs <- err
					return
				}
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			case "done":
				return
			case "error":
				errs <- errors.New("cartesia: " + msg.Error)
				return
			}

			if msg.Done {
				return
			}
		}
	}()

	return out, errs
}

package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const roomExpiry = time.Hour

type Daily struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

func NewDaily(apiKey, baseURL string) *Daily {
	if baseURL == "" {
		baseURL = "https://api.daily.co/v1"
	}
	return &Daily{
		apiKey:  apiKey,
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *Daily) CreateRoom(ctx context.Context, name string) (*Room, error) {
	body := map[string]any{
		"name":    name,
		"privacy": "private",
		"properties": map[string]any{
			"max_participants":   2,
			"enable_chat":        false,
			"enable_screenshare": false,
			"start_video_off":    true,
			"start_audio_off":    false,
			"exp":                time.Now().Add(roomExpiry).Unix(),
		},
	}

	var room Room
	if err := d.doJSON(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &room, nil
}

func (d *Daily) CreateMeetingToken(ctx context.Context, roomName string, owner bool) (string, error) {
	body := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"is_owner":  owner,
		},
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "/meeting-tokens", body, &out); err != nil {
		return "", fmt.Errorf("create meeting token: %w", err)
	}
	return out.Token, nil
}

func (d *Daily) DeleteRoom(ctx context.Context, name string) error {
	if err := d.doJSON(ctx, http.MethodDelete, "/rooms/"+name, nil, nil); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// doJSON issues one API call with up to three attempts on transport errors
// and 5xx responses.
func (d *Daily) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := d.hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("daily api %s %s: status %d", method, path, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("daily api %s %s: status %d: %s", method, path, resp.StatusCode, string(b))
		}

		if out != nil {
			if err := json.Unmarshal(b, out); err != nil {
				return fmt.Errorf("daily api %s %s: decode response: %w", method, path, err)
			}
		}
		return nil
	}
	return lastErr
}

package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// WSClient joins a media room through its websocket audio gateway. Messages
// are JSON envelopes: inbound {"type":"audio_chunk","audio_base64":...} and
// participant events, outbound {"type":"audio_out","audio_base64":...}.
type WSClient struct {
	roomURL string
	token   string
	log     *logrus.Entry

	conn    *websocket.Conn
	writeMu sync.Mutex

	audioIn chan []byte
	events  chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

func NewWSClient(roomURL, token string, log *logrus.Entry) *WSClient {
	return &WSClient{
		roomURL: roomURL,
		token:   token,
		log:     log,
		audioIn: make(chan []byte, 64),
		events:  make(chan Event, 8),
		closed:  make(chan struct{}),
	}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	hdr := http.Header{"Authorization": []string{"Bearer " + c.token}}

	conn, _, err := dialer.DialContext(ctx, wsURL(c.roomURL), hdr)
	if err != nil {
		return err
	}
	c.conn = conn

	go c.readPump()
	return nil
}

func (c *WSClient) AudioIn() <-chan []byte { return c.audioIn }
func (c *WSClient) Events() <-chan Event   { return c.events }

type wsEnvelope struct {
	Type          string `json:"type"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
}

func (c *WSClient) readPump() {
	defer close(c.audioIn)
	defer close(c.events)

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.WithError(err).Debug("transport: read loop ended")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg wsEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Debug("transport: dropping malformed message")
			continue
		}

		switch msg.Type {
		case "audio_chunk":
			raw := msg.AudioBase64
			if i := strings.Index(raw, ","); i >= 0 {
				raw = raw[i+1:] // strip data:...;base64,
			}
			pcm, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				c.log.WithError(err).Debug("transport: bad audio_base64")
				continue
			}
			select {
			case c.audioIn <- pcm:
			case <-c.closed:
				return
			}
		case "participant_joined":
			c.deliver(Event{Kind: ParticipantJoined, ParticipantID: msg.ParticipantID})
		case "participant_left":
			c.deliver(Event{Kind: ParticipantLeft, ParticipantID: msg.ParticipantID})
		}
	}
}

func (c *WSClient) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *WSClient) WriteAudio(ctx context.Context, pcm []byte) error {
	if c.conn == nil {
		return errors.New("transport: not connected")
	}
	msg := wsEnvelope{
		Type:        "audio_out",
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// wsURL maps the provisioned room URL onto its websocket audio gateway.
func wsURL(roomURL string) string {
	switch {
	case strings.HasPrefix(roomURL, "https://"):
		return "wss://" + strings.TrimPrefix(roomURL, "https://")
	case strings.HasPrefix(roomURL, "http://"):
		return "ws://" + strings.TrimPrefix(roomURL, "http://")
	default:
		return roomURL
	}
}

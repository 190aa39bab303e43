package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietEntry() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

// gateway is a minimal in-process audio gateway: it records the received
// bearer token, pushes scripted messages to the client, and relays everything
// the client writes into outbound.
type gateway struct {
	upgrader websocket.Upgrader
	script   []wsEnvelope
	token    chan string
	outbound chan wsEnvelope
}

func newGateway(script ...wsEnvelope) *gateway {
	return &gateway{
		script:   script,
		token:    make(chan string, 1),
		outbound: make(chan wsEnvelope, 16),
	}
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.token <- r.Header.Get("Authorization")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, msg := range g.script {
		b, _ := json.Marshal(msg)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsEnvelope
		if json.Unmarshal(data, &msg) == nil {
			g.outbound <- msg
		}
	}
}

func dialTest(t *testing.T, g *gateway) *WSClient {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	c := NewWSClient(srv.URL, "agent-token", quietEntry())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectSendsBearerToken(t *testing.T) {
	g := newGateway()
	dialTest(t, g)

	select {
	case tok := <-g.token:
		if tok != "Bearer agent-token" {
			t.Fatalf("authorization = %q", tok)
		}
	case <-time.After(time.Second):
		t.Fatal("gateway never saw the handshake")
	}
}

func TestInboundAudioAndEvents(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	g := newGateway(
		wsEnvelope{Type: "participant_joined", ParticipantID: "p1"},
		wsEnvelope{Type: "audio_chunk", AudioBase64: base64.StdEncoding.EncodeToString(pcm)},
		wsEnvelope{Type: "bogus_type"},
		wsEnvelope{Type: "participant_left", ParticipantID: "p1"},
	)
	c := dialTest(t, g)

	select {
	case ev := <-c.Events():
		if ev.Kind != ParticipantJoined || ev.ParticipantID != "p1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no joined event")
	}

	select {
	case got := <-c.AudioIn():
		if string(got) != string(pcm) {
			t.Fatalf("audio = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audio")
	}

	// the unknown message type is skipped, not fatal
	select {
	case ev := <-c.Events():
		if ev.Kind != ParticipantLeft {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no left event")
	}
}

func TestInboundAudioDataURLPrefix(t *testing.T) {
	pcm := []byte("pcm-bytes")
	g := newGateway(wsEnvelope{
		Type:        "audio_chunk",
		AudioBase64: "data:audio/raw;base64," + base64.StdEncoding.EncodeToString(pcm),
	})
	c := dialTest(t, g)

	select {
	case got := <-c.AudioIn():
		if string(got) != string(pcm) {
			t.Fatalf("audio = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audio")
	}
}

func TestWriteAudioEnvelope(t *testing.T) {
	g := newGateway()
	c := dialTest(t, g)

	pcm := []byte{9, 8, 7}
	if err := c.WriteAudio(context.Background(), pcm); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}

	select {
	case msg := <-g.outbound:
		if msg.Type != "audio_out" {
			t.Fatalf("type = %q", msg.Type)
		}
		got, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
		if err != nil || string(got) != string(pcm) {
			t.Fatalf("audio = %q (err %v)", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway never received audio")
	}
}

func TestAudioInClosesWhenConnectionDrops(t *testing.T) {
	g := newGateway()
	c := dialTest(t, g)
	c.Close()

	select {
	case _, ok := <-c.AudioIn():
		if ok {
			t.Fatal("got audio from a closed connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio channel never closed")
	}
}

func TestWriteAudioBeforeConnect(t *testing.T) {
	c := NewWSClient("http://localhost:0", "t", quietEntry())
	if err := c.WriteAudio(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"https://x.daily.co/room": "wss://x.daily.co/room",
		"http://127.0.0.1:8080/r": "ws://127.0.0.1:8080/r",
		"wss://already/ws":        "wss://already/ws",
	}
	for in, want := range cases {
		if got := wsURL(in); got != want {
			t.Errorf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
}

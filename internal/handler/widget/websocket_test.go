package widget

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/handler/chatbot"
	"github.com/zhouzirui/chatwidget/internal/handler/stream"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/service/ai"
	chatservice "github.com/zhouzirui/chatwidget/internal/service/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setupServer(t *testing.T, apiKey string) string {
	t.Helper()
	r := chi.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	answerer, err := ai.NewServiceWithModel(context.Background(), ai.NewEchoModel(), ai.EchoModelName, true)
	require.NoError(t, err)
	bots := bot.NewMemoryStore(bot.Seed("key-1"))

	stream.New(answerer, chatservice.NewService(0), bots).RegisterRoutes(r)
	r.Route("/api/v1", chatbot.New(bots).RegisterRoutes)

	limits := intake.DefaultLimits()
	NewWebSocketHandler(config.WidgetConfig{
		APIKey:        apiKey,
		ConfigURL:     srv.URL + "/api/v1/chatbot/info",
		StreamURL:     srv.URL + "/stream/ask-question",
		MaxFiles:      limits.MaxFiles,
		MaxFileSizeMB: limits.MaxFileSizeMB,
		Accept:        limits.Accept,
		NoticeTTL:     time.Minute,
	}, srv.Client()).RegisterWebSocketRoutes(r)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/widget"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundMessage{Type: typ, Data: raw}))
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func stateWhere(t *testing.T, conn *websocket.Conn, cond func(stateFrame) bool) stateFrame {
	t.Helper()
	var st stateFrame
	readUntil(t, conn, func(f frame) bool {
		if f.Type != "state" {
			return false
		}
		require.NoError(t, json.Unmarshal(f.Data, &st))
		return cond(st)
	})
	return st
}

func TestWidgetConversation(t *testing.T) {
	conn := dial(t, setupServer(t, "key-1"))

	cfg := readUntil(t, conn, func(f frame) bool { return f.Type == "config" })
	require.Contains(t, string(cfg.Data), `"name":"Docs Assistant"`)

	sendJSON(t, conn, "panel", PanelMessage{Visible: true})
	sendJSON(t, conn, "send", TextMessage{Text: "hello"})

	st := stateWhere(t, conn, func(s stateFrame) bool {
		return len(s.Messages) == 2 && !s.Typing && s.OpenMessageID == ""
	})
	require.Equal(t, chat.SenderUser, st.Messages[0].Sender)
	require.Equal(t, "You said: hello", st.Messages[1].Text)
	require.Equal(t, ai.EchoModelName, st.Model)
}

func TestWidgetUnreadWhileHidden(t *testing.T) {
	conn := dial(t, setupServer(t, "key-1"))

	sendJSON(t, conn, "send", TextMessage{Text: "are you there?"})

	f := readUntil(t, conn, func(f frame) bool { return f.Type == "unread" })
	var unread unreadFrame
	require.NoError(t, json.Unmarshal(f.Data, &unread))
	require.Equal(t, 1, unread.Count)
	require.Equal(t, "1", unread.Badge)

	sendJSON(t, conn, "panel", PanelMessage{Visible: true})
	f = readUntil(t, conn, func(f frame) bool { return f.Type == "unread" })
	require.NoError(t, json.Unmarshal(f.Data, &unread))
	require.Zero(t, unread.Count)
}

func TestWidgetStagingNotice(t *testing.T) {
	conn := dial(t, setupServer(t, "key-1"))

	files := make([]FilePayload, 6)
	for i := range files {
		files[i] = FilePayload{Name: "a.txt", MIME: "text/plain", Data: []byte("x")}
	}
	sendJSON(t, conn, "stage", StageMessage{Files: files})

	f := readUntil(t, conn, func(f frame) bool { return f.Type == "notice" })
	require.Contains(t, string(f.Data), "You can attach up to 5 files per selection.")

	sendJSON(t, conn, "stage", StageMessage{Files: files[:2]})
	st := stateWhere(t, conn, func(s stateFrame) bool { return len(s.Staged) == 2 })
	require.Equal(t, "1 B", st.Staged[0].SizeLabel)

	sendJSON(t, conn, "remove", RemoveMessage{Index: 0})
	stateWhere(t, conn, func(s stateFrame) bool { return len(s.Staged) == 1 })
}

func TestWidgetRejectsUnknownMessage(t *testing.T) {
	conn := dial(t, setupServer(t, "key-1"))

	sendJSON(t, conn, "dance", struct{}{})

	f := readUntil(t, conn, func(f frame) bool { return f.Type == "error" })
	require.Contains(t, string(f.Data), "unsupported message type: dance")
}

func TestWidgetBadCredentialIsFatal(t *testing.T) {
	conn := dial(t, setupServer(t, "wrong-key"))

	f := readUntil(t, conn, func(f frame) bool { return f.Type == "error" })
	var e errorFrame
	require.NoError(t, json.Unmarshal(f.Data, &e))
	require.True(t, e.Fatal)
	require.Equal(t, "Unauthorized or invalid API key", e.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "server closes the socket after a fatal error")
}

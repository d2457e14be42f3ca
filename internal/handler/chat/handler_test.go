package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/model/chat"
	chatservice "github.com/zhouzirui/chatwidget/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Service, bot.Store) {
	chatSvc := chatservice.NewService(0)
	store := bot.NewMemoryStore(bot.Seed("key-1"))
	handler := New(chatSvc, store)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, store
}

func TestTranscriptForKeyOwner(t *testing.T) {
	r, chatSvc, store := setupRouter()
	profile, _ := store.FindByAPIKey("key-1")
	other, _ := store.FindByAPIKey("support-key")

	ctx := context.Background()
	if _, err := chatSvc.Record(ctx, chat.Exchange{BotID: profile.UUID, Question: "q1", Answer: "a1"}); err != nil {
		t.Fatalf("Record err: %v", err)
	}
	if _, err := chatSvc.Record(ctx, chat.Exchange{BotID: other.UUID, Question: "q2", Answer: "a2"}); err != nil {
		t.Fatalf("Record err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/chatbot/transcript", nil)
	req.Header.Set("X-Api-Key", "key-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Result []chat.Exchange `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Result) != 1 || body.Result[0].Question != "q1" {
		t.Fatalf("unexpected transcript %+v", body.Result)
	}
}

func TestTranscriptRequiresKey(t *testing.T) {
	r, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/transcript", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/chatwidget/internal/model/bot"
)

func echoBot(w http.ResponseWriter, r *http.Request) {
	profile, ok := BotFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(profile.Name))
}

func serve(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestRequireBot(t *testing.T) {
	store := bot.NewMemoryStore(bot.Seed("k1"))
	h := RequireBot(store)(http.HandlerFunc(echoBot))

	if resp := serve(h, "k1"); resp.Code != http.StatusOK || resp.Body.String() != "Docs Assistant" {
		t.Fatalf("unexpected response %d %q", resp.Code, resp.Body.String())
	}
	if resp := serve(h, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.Code)
	}
	if resp := serve(h, "bad"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", resp.Code)
	}
}

func TestOptionalBot(t *testing.T) {
	store := bot.NewMemoryStore(bot.Seed("k1"))
	h := OptionalBot(store)(http.HandlerFunc(echoBot))

	if resp := serve(h, ""); resp.Code != http.StatusOK || resp.Body.String() != "Docs Assistant" {
		t.Fatalf("expected default bot, got %d %q", resp.Code, resp.Body.String())
	}
	if resp := serve(h, "support-key"); resp.Body.String() != "Support Bot" {
		t.Fatalf("expected support bot, got %q", resp.Body.String())
	}
	if resp := serve(h, "bad"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", resp.Code)
	}
}

package middleware

import (
	"context"
	"net/http"

	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// APIKeyHeader carries the widget credential.
const APIKeyHeader = "X-Api-Key"

type botKey struct{}

// RequireBot resolves the X-Api-Key header to a bot profile and stores it in
// the request context. Unknown or missing keys get 401.
func RequireBot(store bot.Store) func(http.Handler) http.Handler {
	return resolveBot(store, false)
}

// OptionalBot is RequireBot except that a request without a key is served by
// the store's default bot. A key that is present but unknown still gets 401.
func OptionalBot(store bot.Store) func(http.Handler) http.Handler {
	return resolveBot(store, true)
}

func resolveBot(store bot.Store, allowAnonymous bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)

			var (
				profile bot.Profile
				ok      bool
			)
			if key == "" && allowAnonymous {
				profile, ok = store.Default()
			} else {
				profile, ok = store.FindByAPIKey(key)
			}
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), botKey{}, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BotFrom returns the profile resolved by RequireBot or OptionalBot.
func BotFrom(ctx context.Context) (bot.Profile, bool) {
	profile, ok := ctx.Value(botKey{}).(bot.Profile)
	return profile, ok
}

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/Ashish23jun/One-Call/internal/apperr"
	"github.com/Ashish23jun/One-Call/internal/store"
)

type contextKey int

const appContextKey contextKey = iota

// appFrom returns the authenticated app injected by requireApp.
func appFrom(ctx context.Context) (*store.App, bool) {
	app, ok := ctx.Value(appContextKey).(*store.App)
	return app, ok
}

// requireApp authenticates server-to-server calls via the x-app-id and
// x-app-secret headers. The secret comparison in the store is constant-time;
// missing app and wrong secret are indistinguishable to the caller.
func (a *API) requireApp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appID := r.Header.Get("x-app-id")
		secret := r.Header.Get("x-app-secret")
		if appID == "" || secret == "" {
			a.writeError(w, r, apperr.New(apperr.KindUnauthorized, "missing x-app-id or x-app-secret header"))
			return
		}

		app, err := a.store.VerifySecret(r.Context(), appID, secret)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnauthorized) {
				a.writeError(w, r, apperr.New(apperr.KindUnauthorized, "invalid app credentials"))
				return
			}
			a.writeError(w, r, apperr.Internal(err))
			return
		}

		ctx := context.WithValue(r.Context(), appContextKey, app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package server

import (
	"context"
	"net/http"

	"github.com/playperu/motionquiz/internal/auth"
	"github.com/playperu/motionquiz/internal/motionquiz"
)

type ctxKey int

const ctxKeyCaller ctxKey = iota

// authMiddleware requires a valid bearer token and stores the caller in
// the request context.
func authMiddleware(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			caller, err := v.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFrom(r *http.Request) motionquiz.Caller {
	return r.Context().Value(ctxKeyCaller).(motionquiz.Caller)
}

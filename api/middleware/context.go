package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type contextKey string

const ctxTerminalID contextKey = "terminal_id"

func TerminalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTerminalID).(string); ok {
		return v
	}
	return ""
}

// WithTerminalID injects the terminal identifier into the context.
func WithTerminalID(ctx context.Context, terminalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTerminalID, terminalID)
}

// TerminalContext reads the {terminalId} route parameter and tags the
// request context and its logger with it.
func TerminalContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			terminalID := strings.TrimSpace(chi.URLParam(r, "terminalId"))
			if terminalID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "terminal id is required"))
				return
			}
			ctx := WithTerminalID(r.Context(), terminalID)
			if logg != nil {
				ctx = logg.WithTerminalID(ctx, terminalID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

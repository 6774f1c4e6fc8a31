package controller

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coview/groupwatch/pkg/ctxlogger"
)

func (c controller) requestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlogger.AppendCtx(r.Context(), slog.String("request_id", uuid.NewString()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package middleware

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/aluko123/go-fxrate-server/pkg/logger"
)

// WithSessionID tags every connection with a fresh uuid
func WithSessionID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, conn net.Conn) {
			id := uuid.New().String()

			//store in context
			ctx = context.WithValue(ctx, logger.SessionIDKey, id)
			next.ServeConn(ctx, conn)
		})
	}
}

package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"
)

type shutdownKey struct{}

// NewHTTPServer returns a server for handler whose event streams end as soon
// as Shutdown is called. Ordinary requests still run to completion.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	closing, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithValue(context.Background(), shutdownKey{}, closing)
		},
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

// streamContext is done when the request ends or the server begins shutting
// down, whichever comes first.
func streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	closing, ok := r.Context().Value(shutdownKey{}).(context.Context)
	if !ok {
		return ctx, cancel
	}
	stop := context.AfterFunc(closing, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

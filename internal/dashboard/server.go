package dashboard

import (
	"context"
	"net/http"
	"time"

	"queuectl/internal/queue"
)

// DefaultAddr binds the dashboard to loopback only, per spec:
// authentication is out of scope, so the server must not be reachable
// beyond the local machine by default.
const DefaultAddr = "127.0.0.1:8090"

// Serve runs the dashboard HTTP server until ctx is cancelled.
func Serve(ctx context.Context, manager *queue.Manager, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(manager),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

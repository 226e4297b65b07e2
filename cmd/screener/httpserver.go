package main

import (
	"context"
	"log"
	"net/http"
)

// apiServer wraps the snapshot/health/debug mux in its own http.Server,
// separate from the Prometheus metrics server (§6.3).
type apiServer struct {
	mux  http.Handler
	addr string
	srv  *http.Server
}

func (a *apiServer) start() {
	a.srv = &http.Server{Addr: a.addr, Handler: a.mux}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

func (a *apiServer) stop(ctx context.Context) {
	if a.srv != nil {
		a.srv.Shutdown(ctx)
	}
}

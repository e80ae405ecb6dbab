package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ServeHTTP starts a minimal localhost HTTP endpoint serving m's current
// Snapshot as JSON on every request. This is the only transport used to get
// a Snapshot out of a running process: per the ambient stack's scope, wiring
// counters to an external collector (OTLP, Prometheus remote-write) is an
// external collaborator's job, but a same-host `stats` invocation still
// needs some way to read the numbers out of the `run` process, and net/http
// is the standard library's own answer to "serve JSON over a local socket" —
// no third-party HTTP framework in the example pack does anything this
// package doesn't already get for free.
//
// ServeHTTP blocks until ctx is cancelled.
func ServeHTTP(ctx context.Context, addr string, m *Collector) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// FetchSnapshot retrieves a Snapshot from a running process's ServeHTTP
// endpoint.
func FetchSnapshot(ctx context.Context, addr string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/snapshot", nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

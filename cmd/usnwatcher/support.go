package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/marmos91/usnwatcher/internal/logger"
	"github.com/marmos91/usnwatcher/pkg/metrics"
)

func durationFromMillis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// stdoutEmitter returns the Emitter the orchestrator calls for every
// rendered line. "json" writes the NDJSON line verbatim; "table" decodes
// it back into a map for a compact one-line-per-event summary, which
// costs a reflective unmarshal but keeps the wire format (and the pipe
// broadcaster's subscribers) always pure NDJSON regardless of how the
// operator reads stdout.
func stdoutEmitter(format string) func([]byte) {
	if format == "json" {
		return func(line []byte) {
			os.Stdout.Write(line)
			os.Stdout.Write([]byte("\n"))
		}
	}

	return func(line []byte) {
		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			os.Stdout.Write(line)
			os.Stdout.Write([]byte("\n"))
			return
		}
		fmt.Println(renderTableLine(fields))
	}
}

func renderTableLine(fields map[string]any) string {
	if t, ok := fields["type"]; ok {
		return fmt.Sprintf("%-12s %v", t, fields["reason"])
	}

	path, _ := fields["fullPath"].(string)
	if path == "" {
		path = fmt.Sprintf("%v", fields["fileName"])
	}

	return fmt.Sprintf("%-24s %-8v %s", fields["timestamp"], fields["reason"], path)
}

// metricsHTTPServer wraps the background HTTP server serving /metrics.
type metricsHTTPServer struct {
	srv *http.Server
}

func startMetricsServer(addr string, d *metrics.Daemon) *metricsHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(metrics.GetRegistry()))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("usnwatcher: metrics server stopped: %v", err)
		}
	}()

	logger.Info("usnwatcher: metrics listening on %s", addr)
	return &metricsHTTPServer{srv: srv}
}

func (m *metricsHTTPServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	m.srv.Shutdown(ctx)
}

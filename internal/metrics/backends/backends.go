// Package backends installs the metrics backend a job asks for.
package backends

import (
	"fmt"
	"log/slog"

	"ingest/internal/config"
	"ingest/internal/metrics"
	"ingest/internal/metrics/datadog"
	"ingest/internal/metrics/prompush"
)

// DefaultPushgatewayURL is used when the pushgateway backend has no address.
const DefaultPushgatewayURL = "http://localhost:9091"

// Install selects the backend named in m and sets it as the process backend.
// The returned function flushes it; call it once at exit. "" and "none" keep
// the no-op backend.
func Install(job string, m config.Metrics) (func(), error) {
	var b metrics.Backend
	switch m.Backend {
	case "", "none":
		return func() {}, nil

	case "pushgateway":
		addr := m.Addr
		if addr == "" {
			addr = DefaultPushgatewayURL
		}
		pb, err := prompush.NewBackend(job, addr)
		if err != nil {
			return nil, err
		}
		b = pb
		slog.Info("metrics: pushgateway", "url", addr, "job", job)

	case "datadog":
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       m.Addr,
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			return nil, err
		}
		b = db
		slog.Info("metrics: datadog", "addr", m.Addr, "job", job)

	default:
		return nil, fmt.Errorf("metrics: unknown backend %q", m.Backend)
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			slog.Warn("metrics: flush error", "err", err)
		}
		metrics.SetBackend(nil)
	}, nil
}

// Command ingest-web serves the preview and import API.
//
// Usage:
//
//	ingest-web -addr :8080
//	ingest-web -addr :8080 -storage postgres -dsn postgres://... -auto-create
//
// Then:
//
//	curl --data-binary @vehicles.csv 'localhost:8080/api/preview?name=vehicles.csv&limit=20'
//	curl --data-binary @vehicles.csv.gz 'localhost:8080/api/import?name=vehicles.csv.gz'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ingest/internal/config"
	"ingest/internal/logging"
	"ingest/internal/metrics/backends"
	"ingest/internal/webui"

	_ "ingest/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "ingest-web:", err)
		os.Exit(1)
	}
}

// options are the resolved server settings.
type options struct {
	webui   webui.Config
	runtime config.Runtime
	envFile string
}

func parseFlags(args []string, stderr io.Writer, getenv func(string) string) (options, error) {
	var (
		o          options
		batchRows  int
		batchConc  int
		storage    config.Storage
		logLevel   string
		logFormat  string
		metricsBck string
		metricsAdr string
	)
	fs := flag.NewFlagSet("ingest-web", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.webui.Addr, "addr", ":8080", "listen address")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file (missing is fine)")
	fs.IntVar(&o.webui.PreviewLimit, "preview-limit", webui.DefaultPreviewLimit, "maximum rows per preview")
	fs.Int64Var(&o.webui.MaxBodyBytes, "max-body", 0, "maximum upload size in bytes (0 = unlimited)")
	fs.IntVar(&batchRows, "batch-rows", 0, "rows per import batch (default 1000)")
	fs.IntVar(&batchConc, "batch-concurrency", 0, "import batches handled at once (default 5)")
	fs.StringVar(&storage.Kind, "storage", "stdout", "import sink: stdout (stream back), postgres or sqlite")
	fs.StringVar(&storage.DB.DSN, "dsn", "", "database DSN (or INGEST_DSN)")
	fs.StringVar(&storage.DB.Table, "table", "", "destination table (default: derived from the upload name)")
	fs.BoolVar(&storage.DB.AutoCreateTable, "auto-create", false, "create tables from the inferred columns")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&logFormat, "log-format", "", "text or json")
	fs.StringVar(&metricsBck, "metrics-backend", "", "none, pushgateway or datadog")
	fs.StringVar(&metricsAdr, "metrics-addr", "", "Pushgateway URL or DogStatsD address")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if err := config.LoadDotEnv(o.envFile); err != nil {
		return options{}, err
	}

	job := config.Job{
		Name:    "ingest-web",
		Batch:   config.Batch{RowCount: batchRows, ConcurrentMax: batchConc},
		Storage: storage,
		Runtime: config.Runtime{
			LogLevel:  logLevel,
			LogFormat: logFormat,
			Metrics:   config.Metrics{Backend: metricsBck, Addr: metricsAdr},
		},
	}
	job.ApplyEnv(getenv)
	var errs []error
	for _, iss := range config.ValidateServer(job.Batch, job.Storage, job.Runtime) {
		if iss.Path == "storage.db.table" {
			continue
		}
		if iss.Severity == config.SeverityError {
			errs = append(errs, iss)
		} else {
			fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}

	o.webui.Batch = job.Batch.BatchOptions()
	o.webui.Storage = job.Storage
	o.webui.Job = job.Name
	o.runtime = job.Runtime
	return o, nil
}

func run(ctx context.Context, args []string, stderr io.Writer, getenv func(string) string) error {
	o, err := parseFlags(args, stderr, getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	closeLog := logging.Setup(logging.Config{
		Level:  o.runtime.LogLevel,
		Format: o.runtime.LogFormat,
		SeqURL: o.runtime.SeqURL,
		Out:    stderr,
	})
	defer closeLog()

	flush, err := backends.Install(o.webui.Job, o.runtime.Metrics)
	if err != nil {
		return err
	}
	defer flush()

	srv := webui.NewServer(o.webui)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("ingest-web: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

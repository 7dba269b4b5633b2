// Command ingest parses a CSV or NDJSON file and either prints a preview or
// streams batches into a storage sink.
//
// Usage:
//
//	ingest -config job.json
//	ingest -input data.csv.gz -delimiter ';' -preview 20
//	ingest -input https://example.org/rsv.csv -storage sqlite -dsn ingest.db -auto-create
//	cat data.ndjson | ingest -input - -format ndjson -preview 5
//
// Without -preview the whole input is parsed in batches. With no storage kind
// (or "stdout") every row is written to stdout as one JSON object per line.
// Logs always go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ingest/internal/config"
	"ingest/internal/importer"
	"ingest/internal/logging"
	"ingest/internal/metrics/backends"

	// register every storage backend; the job picks one.
	_ "ingest/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// cliFlags mirrors the job file for runs without one.
type cliFlags struct {
	configPath string
	envFile    string
	validate   bool
	preview    int

	input       string
	format      string
	delimiter   string
	noHeader    bool
	columns     string
	types       string
	nullValues  string
	limit       int
	skipDups    bool
	compression string
	charset     string

	storage    string
	dsn        string
	table      string
	autoCreate bool
	batchRows  int
	batchConc  int

	logLevel       string
	logFormat      string
	metricsBackend string
	metricsAddr    string
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.configPath, "config", "", "job file (JSON); other input flags are ignored when set")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing is fine)")
	fs.BoolVar(&f.validate, "validate", false, "validate the job and exit")
	fs.IntVar(&f.preview, "preview", 0, "parse at most N rows and print the result as JSON")

	fs.StringVar(&f.input, "input", "", "input path, http(s) URL, or - for stdin")
	fs.StringVar(&f.format, "format", "csv", "input format: csv or ndjson")
	fs.StringVar(&f.delimiter, "delimiter", "", "field delimiter (detected when empty)")
	fs.BoolVar(&f.noHeader, "no-header", false, "the first row is data, not a header")
	fs.StringVar(&f.columns, "columns", "", "comma-separated column names (skips inference)")
	fs.StringVar(&f.types, "types", "", "comma-separated column types matching -columns")
	fs.StringVar(&f.nullValues, "null-values", "", "comma-separated null tokens (default null,NULL,Null)")
	fs.IntVar(&f.limit, "limit", 0, "stop after N rows (0 = no limit)")
	fs.BoolVar(&f.skipDups, "skip-duplicates", false, "drop rows identical to an earlier row")
	fs.StringVar(&f.compression, "compression", "auto", "auto, none, gzip, zstd, xz, lz4 or bzip2")
	fs.StringVar(&f.charset, "charset", "", "input charset, e.g. latin1, windows-1250 (default utf-8)")

	fs.StringVar(&f.storage, "storage", "stdout", "sink: stdout, postgres or sqlite")
	fs.StringVar(&f.dsn, "dsn", "", "database DSN (or INGEST_DSN)")
	fs.StringVar(&f.table, "table", "", "destination table (default: derived from the input name)")
	fs.BoolVar(&f.autoCreate, "auto-create", false, "create the table from the inferred columns")
	fs.IntVar(&f.batchRows, "batch-rows", 0, "rows per batch (default 1000)")
	fs.IntVar(&f.batchConc, "batch-concurrency", 0, "batches handled at once (default 5)")

	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "none, pushgateway or datadog")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Pushgateway URL or DogStatsD address")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if f.configPath == "" && f.input == "" {
		if fs.NArg() == 1 {
			f.input = fs.Arg(0)
		} else {
			return cliFlags{}, fmt.Errorf("either -config or -input is required")
		}
	}
	return f, nil
}

// jobFromFlags builds the job a job file would describe.
func jobFromFlags(f cliFlags) (config.Job, error) {
	j := config.Job{
		Source: config.Source{Compression: f.compression, Charset: f.charset},
		Parser: config.Parser{Kind: f.format, Options: config.Options{}},
		Batch:  config.Batch{RowCount: f.batchRows, ConcurrentMax: f.batchConc},
		Storage: config.Storage{Kind: f.storage, DB: config.DBConfig{
			DSN: f.dsn, Table: f.table, AutoCreateTable: f.autoCreate,
		}},
		Runtime: config.Runtime{
			LogLevel:  f.logLevel,
			LogFormat: f.logFormat,
			Metrics:   config.Metrics{Backend: f.metricsBackend, Addr: f.metricsAddr},
		},
	}
	if strings.HasPrefix(f.input, "http://") || strings.HasPrefix(f.input, "https://") {
		j.Source.Kind = "http"
		j.Source.HTTP = config.SourceHTTP{URL: f.input, MaxRetries: 3}
	} else {
		j.Source.Kind = "file"
		j.Source.File.Path = f.input
	}

	o := j.Parser.Options
	if f.delimiter != "" {
		o["delimiter"] = f.delimiter
	}
	if f.noHeader {
		o["has_header"] = false
	}
	if f.limit > 0 {
		o["limit"] = float64(f.limit)
	}
	if f.skipDups {
		o["skip_duplicates"] = true
	}
	if f.nullValues != "" {
		o["null_values"] = strings.Split(f.nullValues, ",")
	}
	cols, err := importer.ColumnsFromFlags(f.columns, f.types)
	if err != nil {
		return config.Job{}, err
	}
	if cols != nil {
		o["columns"] = cols
	}
	return j, nil
}

// run is main without the process exit. It returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, "ingest:", err)
		return 2
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		fmt.Fprintln(stderr, "ingest:", err)
		return 1
	}

	var job config.Job
	if f.configPath != "" {
		job, err = config.Load(f.configPath)
	} else {
		job, err = jobFromFlags(f)
	}
	if err != nil {
		fmt.Fprintln(stderr, "ingest:", err)
		return 1
	}
	job.ApplyEnv(getenv)

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		if f.configPath == "" && iss.Path == "name" {
			continue
		}
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "ingest: job is invalid")
		return 1
	}
	if f.validate {
		fmt.Fprintln(stderr, "ingest: job is valid")
		return 0
	}

	closeLog := logging.Setup(logging.Config{
		Level:  job.Runtime.LogLevel,
		Format: job.Runtime.LogFormat,
		SeqURL: job.Runtime.SeqURL,
		Out:    stderr,
	})
	defer closeLog()

	r := &runner{job: job, stdout: stdout}
	flush, err := backends.Install(r.jobName(), job.Runtime.Metrics)
	if err != nil {
		fmt.Fprintln(stderr, "ingest:", err)
		return 1
	}
	defer flush()

	if f.preview > 0 {
		err = r.preview(ctx, f.preview)
	} else {
		err = r.ingest(ctx)
	}
	if err != nil {
		fmt.Fprintln(stderr, "ingest:", err)
		return 1
	}
	return 0
}

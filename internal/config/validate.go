package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Job.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "parser.options.columns").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob lints a decoded job without mutating it.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "name",
			Message:  "name is empty; runs will be labeled by source name",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateParser(j.Parser)...)
	issues = append(issues, validateBatch(j.Batch)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	return issues
}

// ValidateServer lints the sections a long-running server uses; sources and
// parser options arrive per request.
func ValidateServer(b Batch, s Storage, r Runtime) []Issue {
	var issues []Issue
	issues = append(issues, validateBatch(b)...)
	issues = append(issues, validateStorage(s)...)
	issues = append(issues, validateRuntime(r)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "":
		return append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.file.path", "file source requires a non-empty path"})
		}
	case "http":
		u := strings.TrimSpace(s.HTTP.URL)
		if u == "" {
			issues = append(issues, Issue{SeverityError, "source.http.url", "http source requires a url"})
		} else if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, Issue{SeverityError, "source.http.url", fmt.Sprintf("url %q must use http or https", u)})
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.max_retries", "max_retries must not be negative"})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{SeverityWarning, "source.http.insecure_skip_verify", "TLS verification is disabled"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q", s.Kind)})
	}

	switch strings.ToLower(s.Compression) {
	case "", "auto", "none", "gzip", "gz", "zstd", "zst", "xz", "lz4", "bzip2", "bz2":
	default:
		issues = append(issues, Issue{SeverityError, "source.compression", fmt.Sprintf("unknown compression %q", s.Compression)})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		issues = append(issues, Issue{SeverityWarning, "parser.kind", "parser.kind is empty; csv is assumed"})
	}
	if _, err := p.ImporterOptions(); err != nil {
		path := "parser.options"
		if strings.Contains(err.Error(), "parser.kind") {
			path = "parser.kind"
		} else if strings.Contains(err.Error(), "columns") {
			path = "parser.options.columns"
		}
		issues = append(issues, Issue{SeverityError, path, err.Error()})
	}

	o := p.Options
	if d := o.String("delimiter", ""); d != "" && strings.ContainsAny(d, "\"\r\n") {
		issues = append(issues, Issue{SeverityError, "parser.options.delimiter", "delimiter must not contain a quote or line break"})
	}
	if o.Int("limit", 0) < 0 {
		issues = append(issues, Issue{SeverityError, "parser.options.limit", "limit must not be negative"})
	}
	if o.Int("sample_size", 0) < 0 {
		issues = append(issues, Issue{SeverityError, "parser.options.sample_size", "sample_size must not be negative"})
	}
	if o.Has("columns") && !o.Bool("has_header", true) {
		issues = append(issues, Issue{SeverityWarning, "parser.options.columns", "columns are matched by name; without a header names are column_1, column_2, ..."})
	}
	return issues
}

func validateBatch(b Batch) []Issue {
	var issues []Issue
	if b.RowCount < 0 {
		issues = append(issues, Issue{SeverityError, "batch.row_count", "row_count must not be negative"})
	}
	if b.SizeMin < 0 {
		issues = append(issues, Issue{SeverityError, "batch.size_min", "size_min must not be negative"})
	}
	if b.ConcurrentMax < 0 {
		issues = append(issues, Issue{SeverityError, "batch.concurrent_max", "concurrent_max must not be negative"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch s.Kind {
	case "", "stdout":
		return nil
	case "postgres", "sqlite":
	default:
		return append(issues, Issue{SeverityWarning, "storage.kind", fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind)})
	}

	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage.db.dsn must not be empty (or set " + EnvDSN + ")"})
	}
	if strings.TrimSpace(s.DB.Table) == "" && !s.DB.AutoCreateTable {
		issues = append(issues, Issue{SeverityWarning, "storage.db.table", "no table given; a name derived from the source must already exist"})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	switch strings.ToLower(r.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, Issue{SeverityError, "runtime.log_level", fmt.Sprintf("unknown log level %q", r.LogLevel)})
	}
	switch strings.ToLower(r.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, Issue{SeverityError, "runtime.log_format", fmt.Sprintf("unknown log format %q", r.LogFormat)})
	}
	switch r.Metrics.Backend {
	case "", "none":
	case "pushgateway", "datadog":
		if strings.TrimSpace(r.Metrics.Addr) == "" {
			issues = append(issues, Issue{SeverityWarning, "runtime.metrics.addr", "metrics backend has no address; the default is used"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "runtime.metrics.backend", fmt.Sprintf("unknown metrics backend %q", r.Metrics.Backend)})
	}
	return issues
}

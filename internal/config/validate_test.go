package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validJob() Job {
	return Job{
		Name:    "test-job",
		Source:  Source{Kind: "file", File: SourceFile{Path: "input.csv"}},
		Parser:  Parser{Kind: "csv", Options: Options{}},
		Storage: Storage{Kind: "sqlite", DB: DBConfig{DSN: "file:test.db", Table: "t"}},
	}
}

func TestValidateJob_ValidMinimal(t *testing.T) {
	t.Parallel()

	if issues := ValidateJob(validJob()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateJob_StdoutNeedsNoDB(t *testing.T) {
	t.Parallel()

	j := validJob()
	j.Storage = Storage{Kind: "stdout"}
	if issues := ValidateJob(j); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateJob_Findings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(j *Job)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"empty name", func(j *Job) { j.Name = "" }, SeverityWarning, "name", "name is empty"},
		{"missing source kind", func(j *Job) { j.Source.Kind = "" }, SeverityError, "source.kind", "must not be empty"},
		{"unknown source kind", func(j *Job) { j.Source.Kind = "s3" }, SeverityError, "source.kind", `unknown source kind "s3"`},
		{"file without path", func(j *Job) { j.Source.File.Path = " " }, SeverityError, "source.file.path", "non-empty path"},
		{"http without url", func(j *Job) { j.Source.Kind = "http" }, SeverityError, "source.http.url", "requires a url"},
		{"http bad scheme", func(j *Job) {
			j.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "ftp://x/y.csv"}}
		}, SeverityError, "source.http.url", "http or https"},
		{"http negative retries", func(j *Job) {
			j.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "https://x/y.csv", MaxRetries: -1}}
		}, SeverityError, "source.http.max_retries", "negative"},
		{"http insecure", func(j *Job) {
			j.Source = Source{Kind: "http", HTTP: SourceHTTP{URL: "https://x/y.csv", InsecureSkipVerify: true}}
		}, SeverityWarning, "source.http.insecure_skip_verify", "disabled"},
		{"bad compression", func(j *Job) { j.Source.Compression = "rar" }, SeverityError, "source.compression", "rar"},
		{"empty parser kind", func(j *Job) { j.Parser.Kind = "" }, SeverityWarning, "parser.kind", "csv is assumed"},
		{"unknown parser kind", func(j *Job) { j.Parser.Kind = "xml" }, SeverityError, "parser.kind", "unknown format"},
		{"bad columns", func(j *Job) {
			j.Parser.Options["columns"] = []any{map[string]any{"name": "", "type": "int"}}
		}, SeverityError, "parser.options.columns", "empty name"},
		{"quote as delimiter", func(j *Job) { j.Parser.Options["delimiter"] = `"` }, SeverityError, "parser.options.delimiter", "quote"},
		{"negative limit", func(j *Job) { j.Parser.Options["limit"] = float64(-1) }, SeverityError, "parser.options.limit", "negative"},
		{"negative sample", func(j *Job) { j.Parser.Options["sample_size"] = float64(-5) }, SeverityError, "parser.options.sample_size", "negative"},
		{"columns without header", func(j *Job) {
			j.Parser.Options["columns"] = []any{map[string]any{"name": "a", "type": "int"}}
			j.Parser.Options["has_header"] = false
		}, SeverityWarning, "parser.options.columns", "column_1"},
		{"negative row count", func(j *Job) { j.Batch.RowCount = -1 }, SeverityError, "batch.row_count", "negative"},
		{"negative size", func(j *Job) { j.Batch.SizeMin = -1 }, SeverityError, "batch.size_min", "negative"},
		{"negative concurrency", func(j *Job) { j.Batch.ConcurrentMax = -1 }, SeverityError, "batch.concurrent_max", "negative"},
		{"unknown storage", func(j *Job) { j.Storage.Kind = "oracle" }, SeverityWarning, "storage.kind", "oracle"},
		{"missing dsn", func(j *Job) { j.Storage.DB.DSN = "" }, SeverityError, "storage.db.dsn", EnvDSN},
		{"no table", func(j *Job) { j.Storage.DB.Table = "" }, SeverityWarning, "storage.db.table", "derived from the source"},
		{"bad log level", func(j *Job) { j.Runtime.LogLevel = "loud" }, SeverityError, "runtime.log_level", "loud"},
		{"bad log format", func(j *Job) { j.Runtime.LogFormat = "xml" }, SeverityError, "runtime.log_format", "xml"},
		{"bad metrics backend", func(j *Job) { j.Runtime.Metrics.Backend = "statsd" }, SeverityError, "runtime.metrics.backend", "statsd"},
		{"metrics without addr", func(j *Job) { j.Runtime.Metrics.Backend = "datadog" }, SeverityWarning, "runtime.metrics.addr", "default"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			j := validJob()
			j.Parser.Options = Options{}
			c.mutate(&j)
			issues := ValidateJob(j)
			if !hasIssue(t, issues, c.sev, c.path, c.msg) {
				t.Fatalf("expected %s at %s containing %q; got %+v", c.sev, c.path, c.msg, issues)
			}
		})
	}
}

func TestValidateJob_AutoCreateWithoutTableIsFine(t *testing.T) {
	t.Parallel()

	j := validJob()
	j.Storage.DB.Table = ""
	j.Storage.DB.AutoCreateTable = true
	if issues := ValidateJob(j); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestHasErrors_AndIssueError(t *testing.T) {
	t.Parallel()

	warn := Issue{Severity: SeverityWarning, Path: "name", Message: "m"}
	fail := Issue{Severity: SeverityError, Path: "source.kind", Message: "bad"}
	if HasErrors([]Issue{warn}) {
		t.Fatalf("warnings alone are not errors")
	}
	if !HasErrors([]Issue{warn, fail}) {
		t.Fatalf("expected HasErrors")
	}
	if got := fail.Error(); got != "error at source.kind: bad" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestValidateServer(t *testing.T) {
	t.Parallel()

	if issues := ValidateServer(Batch{}, Storage{Kind: "stdout"}, Runtime{}); len(issues) != 0 {
		t.Fatalf("issues = %v", issues)
	}
	issues := ValidateServer(Batch{ConcurrentMax: -1}, Storage{Kind: "sqlite"}, Runtime{LogFormat: "xml"})
	paths := map[string]bool{}
	for _, iss := range issues {
		paths[iss.Path] = true
	}
	for _, want := range []string{"batch.concurrent_max", "storage.db.dsn", "runtime.log_format"} {
		if !paths[want] {
			t.Fatalf("missing issue at %s in %v", want, issues)
		}
	}
	if !HasErrors(issues) {
		t.Fatalf("expected errors")
	}
}

// Package config defines the JSON job file that drives an ingest run: where
// the bytes come from, how they are parsed, how batches are sized and where
// they are written.
//
// Example (trimmed):
//
//	{
//	  "name":    "vehicles",
//	  "source":  { "kind": "file", "file": { "path": "data/vehicles.csv.gz" } },
//	  "parser":  { "kind": "csv", "options": { "delimiter": ";", "null_values": ["", "NA"] } },
//	  "batch":   { "row_count": 5000, "concurrent_max": 4 },
//	  "storage": { "kind": "postgres", "db": { "dsn": "postgres://...", "table": "public.vehicles", "auto_create_table": true } },
//	  "runtime": { "log_level": "info", "metrics": { "backend": "datadog" } }
//	}
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Job describes one ingest run. It is the top-level object of a job file.
type Job struct {
	// Name labels the run in logs and metrics.
	Name string `json:"name"`

	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Batch   Batch   `json:"batch"`
	Storage Storage `json:"storage"`
	Runtime Runtime `json:"runtime"`
}

// Source identifies the input. Kind is "file" or "http".
type Source struct {
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`

	// Compression is "auto" (default), "none", "gzip", "zstd", "xz", "lz4"
	// or "bzip2".
	Compression string `json:"compression"`

	// Charset names the input encoding; empty means UTF-8.
	Charset string `json:"charset"`
}

// SourceFile holds the "file" source settings. Path "-" reads stdin.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP holds the "http" source settings.
type SourceHTTP struct {
	URL                string            `json:"url"`
	Headers            map[string]string `json:"headers"`
	MaxRetries         int               `json:"max_retries"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify"`
}

// Parser selects the tokenizer. Kind is "csv" or "ndjson".
//
// Options is interpreted by ImporterOptions. Recognized keys:
//
//	delimiter (string), delimiters_to_guess ([]string), has_header (bool),
//	keep_empty_lines (bool), newline (string), quote (string),
//	escape (string), comment (string), columns ([{name, type}]),
//	limit (int), null_values ([]string), true_values ([]string),
//	false_values ([]string), list_separator (string), sample_size (int),
//	skip_duplicates (bool)
type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Batch sizes the batches handed to the storage sink. Zero values take the
// batch package defaults.
type Batch struct {
	RowCount      int `json:"row_count"`
	SizeMin       int `json:"size_min"`
	ConcurrentMax int `json:"concurrent_max"`
}

// Storage selects the sink. Kind is "postgres", "sqlite" or "stdout".
type Storage struct {
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures a database sink.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn"`

	// Table is the destination table; it may be schema-qualified.
	// Empty derives a name from the source.
	Table string `json:"table"`

	// AutoCreateTable creates the table from the parse columns when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Runtime carries process-level settings.
type Runtime struct {
	LogLevel  string  `json:"log_level"`
	LogFormat string  `json:"log_format"`
	SeqURL    string  `json:"seq_url"`
	Metrics   Metrics `json:"metrics"`
}

// Metrics selects the metrics backend: "none", "pushgateway" or "datadog".
type Metrics struct {
	Backend string `json:"backend"`

	// Addr is the Pushgateway URL or the DogStatsD agent address.
	Addr string `json:"addr"`
}

// Decode parses a job file body. Unknown fields are rejected so typos in
// keys surface early.
func Decode(b []byte) (Job, error) {
	var j Job
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("config: decode job: %w", err)
	}
	if j.Parser.Options == nil {
		j.Parser.Options = Options{}
	}
	return j, nil
}

// Load reads and decodes the job file at path.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(b)
}

// Env variables that override job settings.
const (
	EnvDSN            = "INGEST_DSN"
	EnvLogLevel       = "INGEST_LOG_LEVEL"
	EnvLogFormat      = "INGEST_LOG_FORMAT"
	EnvSeqURL         = "SEQ_URL"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
	EnvDatadogAddr    = "DD_AGENT_ADDR"
)

// ApplyEnv overrides job settings from the environment looked up by getenv.
// A set PUSHGATEWAY_URL or DD_AGENT_ADDR also selects that metrics backend
// unless the job names one already.
func (j *Job) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvDSN)); v != "" {
		j.Storage.DB.DSN = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		j.Runtime.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvLogFormat)); v != "" {
		j.Runtime.LogFormat = v
	}
	if v := strings.TrimSpace(getenv(EnvSeqURL)); v != "" {
		j.Runtime.SeqURL = v
	}

	m := &j.Runtime.Metrics
	if v := strings.TrimSpace(getenv(EnvPushgatewayURL)); v != "" && (m.Backend == "" || m.Backend == "pushgateway") {
		m.Backend, m.Addr = "pushgateway", v
	} else if v := strings.TrimSpace(getenv(EnvDatadogAddr)); v != "" && (m.Backend == "" || m.Backend == "datadog") {
		m.Backend, m.Addr = "datadog", v
	}
}

// Options is a small helper to fetch typed values from the free-form parser
// options map. It performs minimal coercion and returns the default when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Byte returns the first byte of a string value for key, or def when the
// key is missing or empty. Used for single-byte dialect settings.
func (o Options) Byte(key string, def byte) byte {
	if s := o.String(key, ""); s != "" {
		return s[0]
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. Non-string elements are skipped. Missing keys yield nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Has reports whether key is present, whatever its value.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON makes a missing or null options object decode to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

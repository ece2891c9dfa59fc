// Package config handles loading and validation of the archiver's YAML
// configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/fnal-sbnd/rrarchiver/pkg/types"
	"gopkg.in/yaml.v3"
)

// AppConfig holds process-wide paths and tuning knobs.
type AppConfig struct {
	WorkDir            string `yaml:"work_dir"`
	ImportStateFile    string `yaml:"import_state_file,omitempty"`
	MigrateStateFile   string `yaml:"migrate_state_file,omitempty"`
	ImportFailureLog   string `yaml:"import_failure_log,omitempty"`
	MigrateFailureLog  string `yaml:"migrate_failure_log,omitempty"`
	LockFile           string `yaml:"lock_file,omitempty"`
	BatchSize          int    `yaml:"batch_size"`
	ParallelWorkers    int    `yaml:"parallel_workers"`
	RunProcessRetries  int    `yaml:"run_process_retries"`
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds"`
	LogLevel           string `yaml:"log_level"`
	LogFile            string `yaml:"log_file,omitempty"`
}

// SourceFilesConfig points at the filesystem tree of source run records.
type SourceFilesConfig struct {
	RunRecordsDir string `yaml:"run_records_dir"`
}

// ConfigurationStoreConfig configures the configuration-store adapter.
type ConfigurationStoreConfig struct {
	URI          string `yaml:"uri"`
	Mode         string `yaml:"mode"` // "driver", "cli-local", "cli-remote"
	RemoteHost   string `yaml:"remote_host,omitempty"`
	SchemaDir    string `yaml:"schema_dir"`
	ProductsDir  string `yaml:"products_dir,omitempty"`
	SpackDir     string `yaml:"spack_dir,omitempty"`
	SetupScript  string `yaml:"setup_script"`
	BackingKind  string `yaml:"backing_kind,omitempty"`
}

// ArchiveStoreConfig configures the archive-store HTTP adapter.
type ArchiveStoreConfig struct {
	URL            string `yaml:"url"`
	FolderName     string `yaml:"folder_name"`
	ObjectName     string `yaml:"object_name"`
	WriterUser     string `yaml:"writer_user"`
	WriterPassword string `yaml:"writer_password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// FhiclizeGenerateConfig names which converters/generators are enabled.
type FhiclizeGenerateConfig struct {
	Enabled []string `yaml:"enabled"`
}

func (f FhiclizeGenerateConfig) ShouldConvert(name string) bool {
	for _, e := range f.Enabled {
		if e == name {
			return true
		}
	}
	return false
}

func (f FhiclizeGenerateConfig) ShouldGenerate(name string) bool { return f.ShouldConvert(name) }

// ReportingConfig configures the failure-notification sink.
type ReportingConfig struct {
	SendEmailOnError bool   `yaml:"send_email_on_error"`
	Recipient        string `yaml:"recipient,omitempty"`
	Sender           string `yaml:"sender,omitempty"`
	SMTPHost         string `yaml:"smtp_host,omitempty"`
	SMTPPort         int    `yaml:"smtp_port,omitempty"`
	WebhookURL       string `yaml:"webhook_url,omitempty"`
	MetricsHost      string `yaml:"metrics_host,omitempty"`
	MetricsPrefix    string `yaml:"metrics_prefix,omitempty"`
}

// FuzzConfig holds testing-only knobs for injected skip/error behavior.
type FuzzConfig struct {
	RandomSkipPercent  float64 `yaml:"random_skip_percent,omitempty"`
	RandomErrorPercent float64 `yaml:"random_error_percent,omitempty"`
	RandomSkipRetry    bool    `yaml:"random_skip_retry,omitempty"`
	RandomErrorRetry   bool    `yaml:"random_error_retry,omitempty"`
}

// Config is the top-level parsed configuration document.
type Config struct {
	App                AppConfig                `yaml:"app"`
	SourceFiles        SourceFilesConfig        `yaml:"source_files"`
	ConfigurationStore ConfigurationStoreConfig `yaml:"configuration_store"`
	ArchiveStore       ArchiveStoreConfig       `yaml:"archive_store"`
	FhiclizeGenerate   FhiclizeGenerateConfig   `yaml:"fhiclize_generate"`
	Reporting          ReportingConfig          `yaml:"reporting"`
	Fuzz               FuzzConfig               `yaml:"fuzz"`
}

var refPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses the config file at path, applying environment and
// intra-document variable expansion before validating required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded, err := expandDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandDocument resolves ${NAME}, ${NAME:-default}, and intra-document
// ${section.key} references, detecting circular references among the
// latter.
func expandDocument(doc string) (string, error) {
	// First pass: parse into a raw map for intra-document lookups.
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		// Best-effort: if the document isn't valid YAML yet (e.g. because
		// of unexpanded env refs producing odd tokens), fall back to
		// env-only expansion.
		return expandEnvOnly(doc), nil
	}

	seen := map[string]bool{}
	var resolve func(ref string, chain map[string]bool) (string, error)
	resolve = func(ref string, chain map[string]bool) (string, error) {
		if chain[ref] {
			return "", fmt.Errorf("circular reference: %s", ref)
		}
		chain[ref] = true
		val := lookupDotted(raw, ref)
		if val == "" {
			return "", nil
		}
		return expandRefs(val, chain, resolve)
	}
	_ = seen

	out := refPattern.ReplaceAllStringFunc(doc, func(m string) string {
		inner := m[2 : len(m)-1]
		name, def, hasDefault := splitDefault(inner)

		if env, ok := os.LookupEnv(name); ok {
			return env
		}
		if hasDefault {
			return def
		}
		// Not an env var — try intra-document section.key reference.
		if val := lookupDotted(raw, name); val != "" {
			resolved, err := expandRefs(val, map[string]bool{name: true}, resolve)
			if err == nil {
				return resolved
			}
		}
		return ""
	})
	return out, nil
}

func expandEnvOnly(doc string) string {
	return refPattern.ReplaceAllStringFunc(doc, func(m string) string {
		inner := m[2 : len(m)-1]
		name, def, hasDefault := splitDefault(inner)
		if env, ok := os.LookupEnv(name); ok {
			return env
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

func expandRefs(val string, chain map[string]bool, resolve func(string, map[string]bool) (string, error)) (string, error) {
	var outerErr error
	out := refPattern.ReplaceAllStringFunc(val, func(m string) string {
		inner := m[2 : len(m)-1]
		name, def, hasDefault := splitDefault(inner)
		if env, ok := os.LookupEnv(name); ok {
			return env
		}
		next := map[string]bool{}
		for k := range chain {
			next[k] = true
		}
		r, err := resolve(name, next)
		if err != nil {
			outerErr = err
			return m
		}
		if r == "" && hasDefault {
			return def
		}
		return r
	})
	return out, outerErr
}

func splitDefault(inner string) (name, def string, hasDefault bool) {
	for i := 0; i+2 < len(inner); i++ {
		if inner[i] == ':' && inner[i+1] == '-' {
			return inner[:i], inner[i+2:], true
		}
	}
	return inner, "", false
}

func lookupDotted(raw map[string]any, dotted string) string {
	parts := splitDot(dotted)
	var cur any = raw
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[p]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func applyDefaults(cfg *Config) {
	if cfg.App.BatchSize == 0 {
		cfg.App.BatchSize = 50
	}
	if cfg.App.ParallelWorkers == 0 {
		cfg.App.ParallelWorkers = 4
	}
	if cfg.App.RunProcessRetries == 0 {
		cfg.App.RunProcessRetries = 2
	}
	if cfg.App.RetryDelaySeconds == 0 {
		cfg.App.RetryDelaySeconds = 5
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "INFO"
	}
	if cfg.ArchiveStore.TimeoutSeconds == 0 {
		cfg.ArchiveStore.TimeoutSeconds = 10
	}
	if cfg.App.ImportStateFile == "" {
		cfg.App.ImportStateFile = cfg.App.WorkDir + "/importer_state.json"
	}
	if cfg.App.MigrateStateFile == "" {
		cfg.App.MigrateStateFile = cfg.App.WorkDir + "/migrator_state.json"
	}
	if cfg.App.ImportFailureLog == "" {
		cfg.App.ImportFailureLog = cfg.App.WorkDir + "/import_failures.log"
	}
	if cfg.App.MigrateFailureLog == "" {
		cfg.App.MigrateFailureLog = cfg.App.WorkDir + "/migrate_failures.log"
	}
	if cfg.App.LockFile == "" {
		cfg.App.LockFile = cfg.App.WorkDir + "/.archiver.lock"
	}
}

func validate(cfg *Config) error {
	if cfg.App.WorkDir == "" {
		return fmt.Errorf("app.work_dir is required")
	}
	if cfg.SourceFiles.RunRecordsDir == "" {
		return fmt.Errorf("source_files.run_records_dir is required")
	}
	if cfg.ConfigurationStore.URI == "" {
		return fmt.Errorf("configuration_store.uri is required")
	}
	switch cfg.ConfigurationStore.Mode {
	case "driver", "cli-local", "cli-remote":
	default:
		return fmt.Errorf("configuration_store.mode must be one of driver, cli-local, cli-remote")
	}
	if cfg.ConfigurationStore.Mode == "cli-remote" && cfg.ConfigurationStore.RemoteHost == "" {
		return fmt.Errorf("configuration_store.remote_host is required when mode is cli-remote")
	}
	if cfg.ConfigurationStore.SchemaDir == "" {
		return fmt.Errorf("configuration_store.schema_dir is required")
	}
	if cfg.ArchiveStore.URL == "" {
		return fmt.Errorf("archive_store.url is required")
	}
	if cfg.ArchiveStore.FolderName == "" || cfg.ArchiveStore.ObjectName == "" {
		return fmt.Errorf("archive_store.folder_name and object_name are required")
	}
	for _, name := range cfg.FhiclizeGenerate.Enabled {
		if !knownConverterNames[name] {
			return fmt.Errorf("fhiclize_generate: unknown converter/generator %q", name)
		}
	}
	if cfg.Reporting.SendEmailOnError {
		if cfg.Reporting.Recipient == "" || cfg.Reporting.Sender == "" || cfg.Reporting.SMTPHost == "" {
			return fmt.Errorf("reporting.recipient, sender, and smtp_host are required when send_email_on_error is true")
		}
	}
	return nil
}

var knownConverterNames = map[string]bool{
	"metadata": true, "boot": true, "settings": true, "setup": true,
	"environment": true, "ranks": true, "known_boardreaders_list": true,
	"RunHistory": true, "RunHistory2": true,
}

// BackingKindValue returns the configuration-store's backing database kind for
// informational/reporting purposes only.
func (c ConfigurationStoreConfig) BackingKindValue() types.BackingKind {
	switch c.BackingKind {
	case "mongodb":
		return types.BackingMongoDB
	default:
		return types.BackingFilesystemDB
	}
}

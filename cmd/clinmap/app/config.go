package app

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/clinmap/internal/pipeline"
	"github.com/agentstation/clinmap/pkg/baseline"
	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/reconcile"
	"github.com/agentstation/clinmap/pkg/variant"
)

// envPrefix namespaces every environment variable read through viper:
// consequences.batch_size is CLINMAP_CONSEQUENCES_BATCH_SIZE.
const envPrefix = "CLINMAP"

// Config holds the application configuration loaded from config files,
// environment variables, .env files and command-line flags.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration. LogLevel is the --log-level flag; EnvLogLevel
	// comes from the environment or config file and ranks below -v/-q.
	LogLevel    string
	EnvLogLevel string
	LogFormat   string
	LogOutput   string

	// Run bookkeeping
	Ledger      string
	MetricsFile string
	Report      string

	Consequences pipeline.ConsequencesConfig
	Reconcile    pipeline.ReconcileConfig
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
	v.SetDefault("format", "")
	v.SetDefault("ledger", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("report", "")

	v.SetDefault("consequences.input", "")
	v.SetDefault("consequences.input_format", string(variant.FormatKey))
	v.SetDefault("consequences.output", "")
	v.SetDefault("consequences.failed", "")
	v.SetDefault("consequences.unresolved", "")
	v.SetDefault("consequences.tolerant", false)
	v.SetDefault("consequences.annotator", "")
	v.SetDefault("consequences.annotator_args", []string{})
	v.SetDefault("consequences.annotator_env", []string{})
	v.SetDefault("consequences.lookup", "")
	v.SetDefault("consequences.batch_size", constants.DefaultBatchSize)
	v.SetDefault("consequences.workers", constants.DefaultWorkers)
	v.SetDefault("consequences.retries", constants.DefaultRetries)
	v.SetDefault("consequences.batch_timeout", constants.DefaultBatchTimeout)

	v.SetDefault("reconcile.automated", "")
	v.SetDefault("reconcile.manual", "")
	v.SetDefault("reconcile.baseline", "")
	v.SetDefault("reconcile.history", "")
	v.SetDefault("reconcile.output", "")
	v.SetDefault("reconcile.feedback", "")
	v.SetDefault("reconcile.carry_forward", string(reconcile.CarryRows))
	v.SetDefault("reconcile.allow_missing_baseline", false)
	v.SetDefault("reconcile.strict_duplicates", false)
	v.SetDefault("reconcile.dry_run", false)
	v.SetDefault("reconcile.tolerant", false)
	v.SetDefault("reconcile.feedback_property_type", constants.FeedbackPropertyType)
	v.SetDefault("reconcile.feedback_annotator", constants.FeedbackAnnotator)

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags bound to v
// 2. Environment variables (CLINMAP_*)
// 3. .env files
// 4. Config file (configFile, or .clinmap.yaml in the working or home directory)
// 5. Defaults
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	// Load .env files first (before env binding)
	loadEnvFiles()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile == "" {
		configFile = os.Getenv(envPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config file", "cannot read "+configFile, err)
		}
	} else {
		v.SetConfigName(".clinmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError("config file", "cannot parse .clinmap.yaml", err)
			}
		}
	}

	config := &Config{
		Format:     v.GetString("format"),
		ConfigFile: v.ConfigFileUsed(),

		EnvLogLevel: v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		LogOutput:   v.GetString("log_output"),

		Ledger:      v.GetString("ledger"),
		MetricsFile: v.GetString("metrics_file"),
		Report:      v.GetString("report"),

		Consequences: pipeline.ConsequencesConfig{
			Input:            v.GetString("consequences.input"),
			Output:           v.GetString("consequences.output"),
			FailedOutput:     v.GetString("consequences.failed"),
			UnresolvedOutput: v.GetString("consequences.unresolved"),
			Tolerant:         v.GetBool("consequences.tolerant"),
			AnnotatorEnv:     v.GetStringSlice("consequences.annotator_env"),
			Lookup:           v.GetString("consequences.lookup"),
			BatchSize:        v.GetInt("consequences.batch_size"),
			Workers:          v.GetInt("consequences.workers"),
			Retries:          v.GetInt("consequences.retries"),
			BatchTimeout:     v.GetDuration("consequences.batch_timeout"),
		},

		Reconcile: pipeline.ReconcileConfig{
			Automated:            v.GetString("reconcile.automated"),
			Manual:               v.GetString("reconcile.manual"),
			Baseline:             v.GetString("reconcile.baseline"),
			History:              v.GetString("reconcile.history"),
			Output:               v.GetString("reconcile.output"),
			Feedback:             v.GetString("reconcile.feedback"),
			CarryForward:         reconcile.CarryForward(v.GetString("reconcile.carry_forward")),
			AllowMissingBaseline: v.GetBool("reconcile.allow_missing_baseline"),
			StrictDuplicates:     v.GetBool("reconcile.strict_duplicates"),
			DryRun:               v.GetBool("reconcile.dry_run"),
			Tolerant:             v.GetBool("reconcile.tolerant"),
			FeedbackPropertyType: v.GetString("reconcile.feedback_property_type"),
			FeedbackAnnotator:    v.GetString("reconcile.feedback_annotator"),
			S3: baseline.S3Config{
				Region:          v.GetString("s3.region"),
				Endpoint:        v.GetString("s3.endpoint"),
				PathStyle:       v.GetBool("s3.path_style"),
				AccessKeyID:     v.GetString("s3.access_key_id"),
				SecretAccessKey: v.GetString("s3.secret_access_key"),
			},
		},
	}

	if annotator := v.GetString("consequences.annotator"); annotator != "" {
		config.Consequences.Annotator = append([]string{annotator}, v.GetStringSlice("consequences.annotator_args")...)
	}

	format, err := variant.ParseFormat(v.GetString("consequences.input_format"))
	if err != nil {
		return nil, errors.NewConfigError("consequences", "invalid input format", err)
	}
	config.Consequences.InputFormat = format

	return config, nil
}

// UpdateFromFlags updates config values from the parsed global flags.
// Flag values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	c.LogLevel = logLevel
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// .env.local overrides .env; godotenv never overrides variables that
	// are already set, so load the more specific file first.
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

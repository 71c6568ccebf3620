package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VarshithPawarHR/resume-match-engine/internal/bulk"
	"github.com/VarshithPawarHR/resume-match-engine/internal/retry"
	"github.com/VarshithPawarHR/resume-match-engine/internal/secrets"
	"github.com/VarshithPawarHR/resume-match-engine/internal/server"
	"github.com/VarshithPawarHR/resume-match-engine/internal/store"
)

const (
	app       = "resume-match-engine"
	envPrefix = "RME"
)

type Config struct {
	Gemini   *GeminiConfig       `mapstructure:"gemini"`
	Retry    retry.Policy        `mapstructure:"retry"`
	Strategy bulk.StrategyConfig `mapstructure:"strategy"`
	Store    store.Config        `mapstructure:"store"`
	Server   server.Config       `mapstructure:"server"`
}

type GeminiConfig struct {
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Model        string        `mapstructure:"model"`
	ContextTTL   time.Duration `mapstructure:"context-ttl"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-match-engine scores resumes against a job description with Gemini",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-match-engine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	retryDefaults := retry.Default()
	strategy := bulk.DefaultStrategyConfig()

	// keys need a default to be picked up from RME_* variables on unmarshal
	v.SetDefault("gemini.api-key", "")
	v.SetDefault("gemini.api-key-file", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.context-ttl", 30*time.Minute)
	v.SetDefault("gemini.max-log-length", 200)
	v.SetDefault("retry.max-attempts", retryDefaults.MaxAttempts)
	v.SetDefault("retry.base-delay", retryDefaults.BaseDelay)
	v.SetDefault("retry.max-delay", retryDefaults.MaxDelay)
	v.SetDefault("retry.multiplier", retryDefaults.Multiplier)
	v.SetDefault("strategy.name", strategy.Name)
	v.SetDefault("strategy.workers", strategy.Workers)
	v.SetDefault("strategy.batch.mode", strategy.Batch.Mode)
	v.SetDefault("strategy.batch.file-threshold", strategy.Batch.FileThreshold)
	v.SetDefault("strategy.batch.poll-interval", strategy.Batch.PollInterval)
	v.SetDefault("strategy.batch.timeout", strategy.Batch.Timeout)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.postgres-url", "")
	v.SetDefault("store.redis-addr", "")
	v.SetDefault("store.redis-db", 0)
	v.SetDefault("store.redis-ttl", time.Duration(0))
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.upload-dir", "uploads")
}

func initConfig() {
	// .env first so RME_* variables from it are visible to viper
	if err := secrets.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every setting has a default, so a missing implicit config file is fine.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config.Gemini == nil {
		config.Gemini = &GeminiConfig{}
	}
	config.Server.Debug = viper.GetBool("debug")

	return config, nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	OCR         OCRConfig         `yaml:"ocr" mapstructure:"ocr"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	Review      ReviewConfig      `yaml:"review" mapstructure:"review"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures the OCR engine.
type OCRConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	TesseractPath string  `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	Language      string  `yaml:"language" mapstructure:"language"`
	MistralKey    string  `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string  `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BudgetConfig configures per-document processing limits.
type BudgetConfig struct {
	MaxTimePerPageMS     int64    `yaml:"max_time_per_page_ms" mapstructure:"max_time_per_page_ms"`
	MaxTimePerDocumentMS int64    `yaml:"max_time_per_document_ms" mapstructure:"max_time_per_document_ms"`
	MaxVariantsPerPage   int      `yaml:"max_variants_per_page" mapstructure:"max_variants_per_page"`
	MaxPassesPerZone     int      `yaml:"max_passes_per_zone" mapstructure:"max_passes_per_zone"`
	EarlyStopThreshold   float64  `yaml:"early_stop_confidence_threshold" mapstructure:"early_stop_confidence_threshold"`
	EarlyStopFields      []string `yaml:"early_stop_critical_fields" mapstructure:"early_stop_critical_fields"`
}

// CalibrationConfig configures confidence calibration.
type CalibrationConfig struct {
	MinSamples             int     `yaml:"min_samples" mapstructure:"min_samples"`
	RecalibrationThreshold float64 `yaml:"recalibration_threshold" mapstructure:"recalibration_threshold"`
}

// ReviewConfig configures the review workflow.
type ReviewConfig struct {
	SessionTimeoutMins int      `yaml:"session_timeout_mins" mapstructure:"session_timeout_mins"`
	RequiredFields     []string `yaml:"required_fields" mapstructure:"required_fields"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BILLSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "billscan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("ocr.rate_per_sec", 2.0)
	v.SetDefault("budget.max_time_per_page_ms", 30000)
	v.SetDefault("budget.max_time_per_document_ms", 120000)
	v.SetDefault("budget.max_variants_per_page", 5)
	v.SetDefault("budget.max_passes_per_zone", 3)
	v.SetDefault("budget.early_stop_confidence_threshold", 90)
	v.SetDefault("budget.early_stop_critical_fields", []string{"invoice_number", "total_amount", "invoice_date"})
	v.SetDefault("calibration.min_samples", 5)
	v.SetDefault("calibration.recalibration_threshold", 5.0)
	v.SetDefault("review.session_timeout_mins", 30)
	v.SetDefault("review.required_fields", []string{"invoice_number", "total_amount", "invoice_date", "vendor_name"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

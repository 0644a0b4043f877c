package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Brownie44l1/fer-light/internal/imageproc"
)

type Config struct {
	// HTTP server
	Port           string
	MaxUploadBytes int64
	MaxImagePixels int64
	StaticDir      string
	AllowedOrigins []string
	LogLevel       string

	// Model artifact
	ModelPath          string
	MetadataPath       string
	ONNXRuntimeLibrary string

	// Hue bridge
	HueBridgeAddr string
	HueAPIKey     string
	HueLightID    string
	HueTimeout    time.Duration

	// Prediction events, disabled when MQTTBroker is empty
	MQTTBroker          string
	MQTTClientID        string
	MQTTUsername        string
	MQTTPassword        string
	MQTTTopicPrediction string

	// Prediction history, disabled when ClickHouseAddr is empty
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string
}

// Load reads envFile (or .env when empty) if present, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	root := projectRoot()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: getEnvInt("MAX_UPLOAD_BYTES", 10<<20),
		MaxImagePixels: getEnvInt("MAX_IMAGE_PIXELS", imageproc.DefaultMaxPixels),
		StaticDir:      getEnv("STATIC_DIR", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		ModelPath:          resolve(root, getEnv("MODEL_PATH", filepath.Join("models", "model_embedded.onnx"))),
		MetadataPath:       resolve(root, getEnv("METADATA_PATH", filepath.Join("models", "model_metadata.json"))),
		ONNXRuntimeLibrary: getEnv("ONNXRUNTIME_LIB", ""),

		HueBridgeAddr: getEnv("HUE_BRIDGE_ADDR", ""),
		HueAPIKey:     getEnv("HUE_API_KEY", ""),
		HueLightID:    getEnv("HUE_LIGHT_ID", "1"),
		HueTimeout:    getEnvDuration("HUE_TIMEOUT", 5*time.Second),

		MQTTBroker:          getEnv("MQTT_BROKER", ""),
		MQTTClientID:        getEnv("MQTT_CLIENT_ID", "fer-light"),
		MQTTUsername:        getEnv("MQTT_USERNAME", ""),
		MQTTPassword:        getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrediction: getEnv("MQTT_TOPIC_PREDICTION", "fer-light/{light_id}/prediction"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "fer"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),
	}

	return cfg, nil
}

// Validate checks the settings needed to serve.
func (c *Config) Validate() error {
	var errs []error
	if c.HueBridgeAddr == "" {
		errs = append(errs, errors.New("HUE_BRIDGE_ADDR is required"))
	}
	if c.HueAPIKey == "" {
		errs = append(errs, errors.New("HUE_API_KEY is required"))
	}
	if c.HueLightID == "" {
		errs = append(errs, errors.New("HUE_LIGHT_ID must not be empty"))
	}
	if c.HueTimeout <= 0 {
		errs = append(errs, errors.New("HUE_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_PIXELS must be positive"))
	}
	for _, origin := range c.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			errs = append(errs, err)
		}
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORT %q is not a valid port", c.Port))
	}
	return errors.Join(errs...)
}

// validateOrigin accepts "*" or an http(s) origin without wildcards, the
// forms the CORS middleware takes without panicking.
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return fmt.Errorf("ALLOWED_ORIGINS entry %q must start with http:// or https://", origin)
	}
	if strings.Contains(origin, "*") {
		return fmt.Errorf("ALLOWED_ORIGINS entry %q must not contain wildcards", origin)
	}
	return nil
}

// Debug reports whether debug logging was requested.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// projectRoot returns the working directory, stepping out of cmd/server when
// the binary is run from there.
func projectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if filepath.Base(wd) == "server" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		return filepath.Join(wd, "..", "..")
	}
	return wd
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

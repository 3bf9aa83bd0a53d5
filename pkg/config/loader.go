package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Service loads and validates gateway configuration.
type Service interface {
	Load(ctx context.Context) (*Config, error)
	Validate(config *Config) error
}

// loader implements the Service interface for configuration management.
type loader struct {
	koanf     *koanf.Koanf
	validator *validator.Validate
	envPrefix string
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	return &loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
		envPrefix: "MDMGATE_",
	}
}

// Load loads configuration from defaults, an optional .env file, and
// environment variables, in increasing order of precedence.
func (l *loader) Load(_ context.Context) (*Config, error) {
	// Missing .env is fine; the environment itself takes over.
	_ = godotenv.Load()

	if err := l.loadDefaults(); err != nil {
		return nil, err
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	return l.unmarshalAndValidate()
}

// loadDefaults loads the default configuration.
func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	return nil
}

// envToPath maps env var names (without prefix) declared in struct tags to
// their koanf paths, walking nested structs.
func envToPath() map[string]string {
	mappings := make(map[string]string)
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			path := field.Tag.Get("koanf")
			if path == "" {
				continue
			}
			if prefix != "" {
				path = prefix + "." + path
			}
			if envVar := field.Tag.Get("env"); envVar != "" {
				mappings[envVar] = path
			}
			if field.Type.Kind() == reflect.Struct {
				walk(field.Type, path)
			}
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return mappings
}

// loadEnvironment loads configuration from environment variables.
func (l *loader) loadEnvironment() error {
	mappings := envToPath()
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		Prefix: l.envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, l.envPrefix)
			if path, ok := mappings[key]; ok {
				return path, value
			}
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

// sensitiveStringDecodeHook converts strings to SensitiveString.
func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// unmarshalAndValidate unmarshals the configuration and validates it.
func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if config.MDM.RequestTimeout <= 0 {
		return fmt.Errorf("mdm request_timeout must be positive")
	}
	if config.Auth.ClientID != "" && config.Auth.ClientSecret == "" {
		return fmt.Errorf("auth client_secret is required when client_id is set")
	}
	return nil
}

// Package config loads runtime configuration from an optional
// openrecords.yaml plus OPENRECORDS_ environment variables, with environment
// taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	HTTPAddr    string `mapstructure:"http_addr"`

	// FromEmail is the sender on all outbound mail. CheckEmail receives
	// check-mailed accounting notices.
	FromEmail  string `mapstructure:"from_email"`
	CheckEmail string `mapstructure:"check_email"`

	SMTP struct {
		Addr     string `mapstructure:"addr"` // host:port; empty logs instead of sending
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`

	MailingList struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
		ListID string `mapstructure:"list_id"`
	} `mapstructure:"mailing_list"`

	Payments struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"payments"`

	Worker struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxAttempts  int           `mapstructure:"max_attempts"`
	} `mapstructure:"worker"`
}

// Load reads openrecords.yaml from the working directory if present, then
// overlays OPENRECORDS_ environment variables (OPENRECORDS_HTTP_ADDR,
// OPENRECORDS_SMTP_ADDR and so on).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("openrecords")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OPENRECORDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	// Nested keys need defaults so AutomaticEnv can bind them.
	v.SetDefault("database_url", "")
	v.SetDefault("smtp.addr", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("mailing_list.url", "")
	v.SetDefault("mailing_list.api_key", "")
	v.SetDefault("mailing_list.list_id", "")
	v.SetDefault("payments.url", "")
	v.SetDefault("payments.api_key", "")
	v.SetDefault("from_email", "info@openrecords.example")
	v.SetDefault("check_email", "accounting@openrecords.example")
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.max_attempts", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerUrl *url.URL
	Token     string
	MatchId   string
	LogLevel  string

	DebounceWindow  time.Duration
	SnapshotTimeout time.Duration
	ConnectTimeout  time.Duration
	RetryDelay      time.Duration
	RequestTimeout  time.Duration
}

func (cfg Config) Options() Options {
	return Options{
		DebounceWindow:  cfg.DebounceWindow,
		SnapshotTimeout: cfg.SnapshotTimeout,
	}
}

func (cfg Config) ConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		RetryDelay:     cfg.RetryDelay,
	}
}

// LoadConfig reads config.yaml from configPaths. Environment variables win
// (Client.Token is read from CLIENT_TOKEN).
func LoadConfig(configPaths ...string) (Config, error) {
	v := viper.New()
	v.SetDefault("Client.ServerUrl", "http://localhost:7202")
	v.SetDefault("Client.LogLevel", "info")
	v.SetDefault("Client.DebounceWindow", "2s")
	v.SetDefault("Client.SnapshotTimeout", "5s")
	v.SetDefault("Client.ConnectTimeout", "10s")
	v.SetDefault("Client.RetryDelay", "3s")
	v.SetDefault("Client.RequestTimeout", "10s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	serverUrl, err := url.Parse(v.GetString("Client.ServerUrl"))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse server url: %w", err)
	}
	return Config{
		ServerUrl:       serverUrl,
		Token:           v.GetString("Client.Token"),
		MatchId:         v.GetString("Client.MatchId"),
		LogLevel:        v.GetString("Client.LogLevel"),
		DebounceWindow:  v.GetDuration("Client.DebounceWindow"),
		SnapshotTimeout: v.GetDuration("Client.SnapshotTimeout"),
		ConnectTimeout:  v.GetDuration("Client.ConnectTimeout"),
		RetryDelay:      v.GetDuration("Client.RetryDelay"),
		RequestTimeout:  v.GetDuration("Client.RequestTimeout"),
	}, nil
}

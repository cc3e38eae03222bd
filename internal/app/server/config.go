package server

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chess-vn/slbaduk/internal/app/analysis"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string
	IdleTimeout       time.Duration
	TickInterval      time.Duration
	WriteTimeout      time.Duration
	SnapshotChunkSize int
	LogLevel          string

	// Store selects "memory" or "dynamodb".
	Store          string
	ArchiveEnabled bool

	JwtSecret string
	JwtIssuer string

	Match   entities.MatchConfig
	Game    game.Options
	Rewards Rewards

	// Analysis is nil when no analysis service is configured.
	Analysis *analysis.Config
}

type Rewards = game.Rewards

// LoadConfig reads config.yaml from the given directories, then the optional
// env files, with OS environment variables taking precedence
// (Server.Port is overridden by SERVER_PORT).
func LoadConfig(configPaths []string, envFiles []string) (Config, error) {
	v := viper.New()
	setDefaults(v)

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
	if err := loadEnvFiles(v, envFiles); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:              v.GetString("Server.Port"),
		IdleTimeout:       v.GetDuration("Server.IdleTimeout"),
		TickInterval:      v.GetDuration("Server.TickInterval"),
		WriteTimeout:      v.GetDuration("Server.WriteTimeout"),
		SnapshotChunkSize: v.GetInt("Server.SnapshotChunkSize"),
		LogLevel:          v.GetString("Server.LogLevel"),
		Store:             v.GetString("Server.Store"),
		ArchiveEnabled:    v.GetBool("Server.ArchiveEnabled"),
		JwtSecret:         v.GetString("JWT_SECRET"),
		JwtIssuer:         v.GetString("JWT_ISSUER"),
		Match: entities.MatchConfig{
			BoardSize:     v.GetInt("Match.BoardSize"),
			TurnTimeLimit: v.GetDuration("Match.TurnTimeLimit"),
			ItemUses:      v.GetInt("Match.ItemUses"),
			CancelTimeout: v.GetDuration("Match.CancelTimeout"),
		},
		Game: game.Options{
			ItemSelectWindow: v.GetDuration("Match.ItemSelectWindow"),
			StaleGrace:       v.GetDuration("Match.StaleGrace"),
			StaleCeiling:     v.GetDuration("Match.StaleCeiling"),
		},
		Rewards: Rewards{
			WinExperience:      v.GetInt64("Rewards.WinExperience"),
			LossExperience:     v.GetInt64("Rewards.LossExperience"),
			WinGold:            v.GetInt64("Rewards.WinGold"),
			ExperiencePerLevel: v.GetInt64("Rewards.ExperiencePerLevel"),
		},
	}
	if cfg.JwtSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is not set")
	}
	if cfg.Match.BoardSize < 2 || cfg.Match.BoardSize > 25 {
		return Config{}, fmt.Errorf("invalid board size %d", cfg.Match.BoardSize)
	}

	if raw := v.GetString("ANALYSIS_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse analysis url: %w", err)
		}
		cfg.Analysis = &analysis.Config{
			BaseUrl: u,
			Timeout: v.GetDuration("Analysis.Timeout"),
			Rules:   v.GetString("Analysis.Rules"),
			Komi:    v.GetFloat64("Analysis.Komi"),
		}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "7202")
	v.SetDefault("Server.IdleTimeout", "5m")
	v.SetDefault("Server.TickInterval", "250ms")
	v.SetDefault("Server.WriteTimeout", "10s")
	v.SetDefault("Server.SnapshotChunkSize", 16*1024)
	v.SetDefault("Server.LogLevel", "info")
	v.SetDefault("Server.Store", "memory")
	v.SetDefault("Server.ArchiveEnabled", false)
	v.SetDefault("JWT_ISSUER", "slbaduk")

	v.SetDefault("Match.BoardSize", 9)
	v.SetDefault("Match.TurnTimeLimit", "45s")
	v.SetDefault("Match.ItemUses", 2)
	v.SetDefault("Match.CancelTimeout", "30s")
	defaults := game.DefaultOptions()
	v.SetDefault("Match.ItemSelectWindow", defaults.ItemSelectWindow)
	v.SetDefault("Match.StaleGrace", defaults.StaleGrace)
	v.SetDefault("Match.StaleCeiling", defaults.StaleCeiling)

	v.SetDefault("Rewards.WinExperience", 30)
	v.SetDefault("Rewards.LossExperience", 10)
	v.SetDefault("Rewards.WinGold", 20)
	v.SetDefault("Rewards.ExperiencePerLevel", 100)

	v.SetDefault("Analysis.Timeout", "10s")
	v.SetDefault("Analysis.Rules", "japanese")
	v.SetDefault("Analysis.Komi", 6.5)
}

// loadEnvFiles merges KEY=VALUE files; missing files are skipped.
func loadEnvFiles(v *viper.Viper, filenames []string) error {
	for _, file := range filenames {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to merge %s: %w", file, err)
		}
	}
	return nil
}

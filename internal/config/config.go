package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	corechess "github.com/park285/chess-analysis-board/internal/chess"
)

type AppConfig struct {
	HTTPAddr       string
	AllowedOrigins []string

	StockfishPath string
	EngineThreads int
	EngineHashMB  int

	AnalysisProfile string
	TopMovesProfile string
	TopMoves        int
	SquareSize      int

	RedisURL        string
	CachePrefix     string
	EvalCacheTTLSec int
	WorkspaceKey    string
	WorkspaceTTLSec int

	DatabaseURL string
	MessagesDir string

	// Profiles come from the config file and are registered on Apply.
	Profiles []corechess.AnalysisProfile
}

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
type fileConfig struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Engine struct {
		Path    string `yaml:"path"`
		Threads int    `yaml:"threads"`
		HashMB  int    `yaml:"hash_mb"`
	} `yaml:"engine"`
	Analysis struct {
		Profile    string `yaml:"profile"`
		TopProfile string `yaml:"top_profile"`
		TopMoves   int    `yaml:"top_moves"`
	} `yaml:"analysis"`
	Board struct {
		SquareSize int `yaml:"square_size"`
	} `yaml:"board"`
	Profiles []corechess.AnalysisProfile `yaml:"profiles"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:        ":8080",
		EngineThreads:   1,
		EngineHashMB:    64,
		AnalysisProfile: corechess.ProfileQuick,
		TopMovesProfile: corechess.ProfileTop,
		TopMoves:        corechess.DefaultTopMoves,
		SquareSize:      60,
		CachePrefix:     "chessboard",
		EvalCacheTTLSec: 86400,
		WorkspaceKey:    "default",
		WorkspaceTTLSec: 30 * 86400,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("FEED_ALLOWED_ORIGINS"))

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.EngineThreads = envInt("ENGINE_THREADS", cfg.EngineThreads)
	cfg.EngineHashMB = envInt("ENGINE_HASH_MB", cfg.EngineHashMB)

	if v := strings.TrimSpace(os.Getenv("ANALYSIS_PROFILE")); v != "" {
		cfg.AnalysisProfile = v
	}
	if v := strings.TrimSpace(os.Getenv("TOP_MOVES_PROFILE")); v != "" {
		cfg.TopMovesProfile = v
	}
	cfg.TopMoves = envInt("TOP_MOVES", cfg.TopMoves)
	cfg.SquareSize = envInt("BOARD_SQUARE_SIZE", cfg.SquareSize)

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("CACHE_PREFIX")); v != "" {
		cfg.CachePrefix = v
	}
	cfg.EvalCacheTTLSec = envInt("EVAL_CACHE_TTL", cfg.EvalCacheTTLSec)
	if v := strings.TrimSpace(os.Getenv("WORKSPACE_KEY")); v != "" {
		cfg.WorkspaceKey = v
	}
	cfg.WorkspaceTTLSec = envInt("WORKSPACE_TTL", cfg.WorkspaceTTLSec)

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}
	return cfg, nil
}

// overlay applies the YAML file on top of the environment. Only keys present
// in the file change anything.
func (c *AppConfig) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if v := strings.TrimSpace(fc.Server.Addr); v != "" {
		c.HTTPAddr = v
	}
	if len(fc.Server.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), fc.Server.AllowedOrigins...)
	}
	if v := strings.TrimSpace(fc.Engine.Path); v != "" {
		c.StockfishPath = v
	}
	if fc.Engine.Threads > 0 {
		c.EngineThreads = fc.Engine.Threads
	}
	if fc.Engine.HashMB > 0 {
		c.EngineHashMB = fc.Engine.HashMB
	}
	if v := strings.TrimSpace(fc.Analysis.Profile); v != "" {
		c.AnalysisProfile = v
	}
	if v := strings.TrimSpace(fc.Analysis.TopProfile); v != "" {
		c.TopMovesProfile = v
	}
	if fc.Analysis.TopMoves > 0 {
		c.TopMoves = fc.Analysis.TopMoves
	}
	if fc.Board.SquareSize > 0 {
		c.SquareSize = fc.Board.SquareSize
	}
	for _, p := range fc.Profiles {
		if err := corechess.ValidateProfile(p); err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}
	c.Profiles = append(c.Profiles, fc.Profiles...)
	return nil
}

// RegisterProfiles adds the file-defined profiles to the registry.
func (c *AppConfig) RegisterProfiles() error {
	for _, p := range c.Profiles {
		if err := corechess.SetProfile(p); err != nil {
			return fmt.Errorf("register profile %q: %w", p.Name, err)
		}
	}
	return nil
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

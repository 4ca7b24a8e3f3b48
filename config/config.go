package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface. The same
// file configures both binaries; each reads the sections it needs.
type Config struct {
	Server Server
	Agent  Agent
	Sync   Sync
}

// Server holds options for the cooperative ledger server.
type Server struct {
	Port   string
	DBPath string

	// AllowedOrigins lists the CORS origins a dashboard may call from.
	// Empty means any origin.
	AllowedOrigins []string
}

// Agent holds options for the on-farm client.
type Agent struct {
	ServerURL string
	DBPath    string
	FarmID    string
	Operator  string

	// MasterDataPath points at the JSON farm/product registry.
	MasterDataPath string
}

// Sync holds replay scheduling settings.
type Sync struct {
	CronSchedule string
	Timezone     string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: Server{
			Port:           getenvWithDefault("LEDGER_PORT", "8080"),
			DBPath:         getenvWithDefault("LEDGER_DB_PATH", "./data/ledger.db"),
			AllowedOrigins: splitList(os.Getenv("LEDGER_ALLOWED_ORIGINS")),
		},
		Agent: Agent{
			ServerURL:      getenvWithDefault("LEDGER_SERVER_URL", "http://localhost:8080"),
			DBPath:         getenvWithDefault("AGENT_DB_PATH", "./data/agent.db"),
			FarmID:         os.Getenv("AGENT_FARM_ID"),
			Operator:       getenvWithDefault("AGENT_OPERATOR", "operator"),
			MasterDataPath: os.Getenv("AGENT_MASTER_DATA_PATH"),
		},
		Sync: Sync{
			// Try a drain every five minutes by default; connectivity
			// transitions trigger additional drains.
			CronSchedule: getenvWithDefault("SYNC_CRON_SCHEDULE", "*/5 * * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("LEDGER_PORT must be provided")
	}
	if c.Server.DBPath == "" {
		return errors.New("LEDGER_DB_PATH must not be empty")
	}
	if c.Agent.ServerURL == "" {
		return errors.New("LEDGER_SERVER_URL must not be empty")
	}
	if c.Sync.CronSchedule == "" {
		return errors.New("SYNC_CRON_SCHEDULE must not be empty")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

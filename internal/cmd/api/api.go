// Package api parses api service flags and launches the service.
package api

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/earnpro/referralpro/internal/platform/cmd"
	server "github.com/earnpro/referralpro/internal/services/api/app"
)

// Config holds api command configuration.
type Config struct {
	Port           int    `env:"REFERRALPRO_API_PORT" envDefault:"8080"`
	DBPath         string `env:"REFERRALPRO_DB_PATH" envDefault:"data/referral.db"`
	AllowedOrigins string `env:"REFERRALPRO_API_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "Comma-separated CORS origins")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OriginList parses the comma-separated allowed origin list.
func (c Config) OriginList() []string {
	var origins []string
	for _, field := range strings.Split(c.AllowedOrigins, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		origins = append(origins, field)
	}
	return origins
}

// Run starts the api service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAPI, func(context.Context) error {
		return server.Run(ctx, fmt.Sprintf(":%d", cfg.Port), cfg.DBPath, cfg.OriginList())
	})
}

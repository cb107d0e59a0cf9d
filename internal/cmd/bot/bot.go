// Package bot parses bot service flags and launches the service.
package bot

import (
	"context"
	"flag"
	"strconv"
	"strings"

	entrypoint "github.com/earnpro/referralpro/internal/platform/cmd"
	server "github.com/earnpro/referralpro/internal/services/bot/app"
)

// Config holds bot command configuration.
type Config struct {
	Token      string `env:"REFERRALPRO_BOT_TOKEN"`
	ChannelID  int64  `env:"REFERRALPRO_CHANNEL_ID"`
	ChannelURL string `env:"REFERRALPRO_CHANNEL_URL"`
	AdminIDs   string `env:"REFERRALPRO_ADMIN_IDS"`
	DBPath     string `env:"REFERRALPRO_DB_PATH" envDefault:"data/referral.db"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Telegram bot token")
	fs.Int64Var(&cfg.ChannelID, "channel-id", cfg.ChannelID, "Tracked channel id")
	fs.StringVar(&cfg.ChannelURL, "channel-url", cfg.ChannelURL, "Public channel join link")
	fs.StringVar(&cfg.AdminIDs, "admin-ids", cfg.AdminIDs, "Comma-separated admin user ids")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AdminIDList parses the comma-separated admin id list. Unparsable
// entries are skipped.
func (c Config) AdminIDList() []int64 {
	var ids []int64
	for _, field := range strings.Split(c.AdminIDs, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Run starts the bot service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBot, func(context.Context) error {
		return server.Run(ctx, server.Config{
			Token:      cfg.Token,
			ChannelID:  cfg.ChannelID,
			ChannelURL: cfg.ChannelURL,
			AdminIDs:   cfg.AdminIDList(),
			DBPath:     cfg.DBPath,
		})
	})
}

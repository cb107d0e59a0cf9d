// Package seed loads the default reward tier catalog into the store.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/earnpro/referralpro/internal/services/referral/storage"
	"github.com/earnpro/referralpro/internal/services/referral/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath string
	Reset  bool
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// defaultTargets is the stock tier ladder. Levels are unique, so
// re-running the command updates descriptions in place.
var defaultTargets = []storage.Target{
	{Level: 5, RewardDescription: "Basic referral reward", RewardAmount: 10, Active: true},
	{Level: 10, RewardDescription: "Silver referral reward", RewardAmount: 25, Active: true},
	{Level: 25, RewardDescription: "Gold referral reward", RewardAmount: 75, Active: true},
	{Level: 50, RewardDescription: "Platinum referral reward", RewardAmount: 200, Active: true},
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	dbPath := envOrDefault(lookup, []string{"REFERRALPRO_DB_PATH"}, "data/referral.db")
	var reset bool

	fs.StringVar(&dbPath, "db", dbPath, "SQLite database path")
	fs.BoolVar(&reset, "reset-active", false, "point the active target back at the lowest tier")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return Config{DBPath: dbPath, Reset: reset}, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return Apply(ctx, store, cfg.Reset, out)
}

// Apply writes the default tiers and ensures an active target is set.
// Existing tier descriptions are refreshed; the active target setting
// is only written when missing unless reset is true.
func Apply(ctx context.Context, store storage.Store, reset bool, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	lowestID := int64(0)
	for _, target := range defaultTargets {
		id, err := store.PutTarget(ctx, target)
		if err != nil {
			return fmt.Errorf("put target level %d: %w", target.Level, err)
		}
		if lowestID == 0 {
			lowestID = id
		}
		fmt.Fprintf(out, "target level %d -> id %d\n", target.Level, id)
	}

	current, err := store.GetSetting(ctx, storage.SettingActiveTargetID)
	switch {
	case err == nil && !reset:
		if _, parseErr := strconv.ParseInt(current, 10, 64); parseErr == nil {
			fmt.Fprintf(out, "active target already set (id %s)\n", current)
			return nil
		}
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("read active target: %w", err)
	}

	if err := store.PutSetting(ctx, storage.SettingActiveTargetID, strconv.FormatInt(lowestID, 10)); err != nil {
		return fmt.Errorf("set active target: %w", err)
	}
	fmt.Fprintf(out, "active target set to id %d\n", lowestID)
	return nil
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}

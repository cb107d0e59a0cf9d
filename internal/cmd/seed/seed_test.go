package seed

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/earnpro/referralpro/internal/services/referral/storage"
	"github.com/earnpro/referralpro/internal/services/referral/storage/sqlite"
)

func TestParseConfig(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "REFERRALPRO_DB_PATH" {
			return "/tmp/env.db", true
		}
		return "", false
	}

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}

	fs = flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err = ParseConfig(fs, []string{"-db", "/tmp/flag.db", "-reset-active"}, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/flag.db" {
		t.Fatalf("expected flag db path, got %q", cfg.DBPath)
	}
	if !cfg.Reset {
		t.Fatal("expected reset flag set")
	}
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestApplySeedsTiersAndActiveTarget(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	var out bytes.Buffer
	if err := Apply(ctx, store, false, &out); err != nil {
		t.Fatalf("apply: %v", err)
	}

	targets, err := store.ListTargets(ctx)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(targets) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(targets))
	}
	if targets[0].Level != 5 || targets[3].Level != 50 {
		t.Fatalf("unexpected tier ladder: %+v", targets)
	}

	for _, target := range targets {
		if !target.Active {
			t.Fatalf("expected seeded tier %d active, got %+v", target.Level, target)
		}
		if target.RewardAmount <= 0 {
			t.Fatalf("expected seeded tier %d to carry a reward amount, got %+v", target.Level, target)
		}
	}
	if targets[0].RewardAmount != 10 || targets[3].RewardAmount != 200 {
		t.Fatalf("unexpected reward amounts: %+v", targets)
	}

	value, err := store.GetSetting(ctx, storage.SettingActiveTargetID)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != strconv.FormatInt(targets[0].ID, 10) {
		t.Fatalf("expected active target %d, got %s", targets[0].ID, value)
	}

	activeID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		t.Fatalf("parse active target id: %v", err)
	}
	active, err := store.GetTarget(ctx, activeID)
	if err != nil {
		t.Fatalf("expected seeded active target to be visible: %v", err)
	}
	if active.Level != 5 {
		t.Fatalf("expected active target level 5, got %d", active.Level)
	}
}

func TestApplyKeepsExistingActiveTarget(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := Apply(ctx, store, false, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}

	targets, err := store.ListTargets(ctx)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	custom := strconv.FormatInt(targets[2].ID, 10)
	if err := store.PutSetting(ctx, storage.SettingActiveTargetID, custom); err != nil {
		t.Fatalf("put setting: %v", err)
	}

	if err := Apply(ctx, store, false, nil); err != nil {
		t.Fatalf("apply again: %v", err)
	}
	value, err := store.GetSetting(ctx, storage.SettingActiveTargetID)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != custom {
		t.Fatalf("expected active target preserved as %s, got %s", custom, value)
	}

	if err := Apply(ctx, store, true, nil); err != nil {
		t.Fatalf("apply with reset: %v", err)
	}
	value, err = store.GetSetting(ctx, storage.SettingActiveTargetID)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != strconv.FormatInt(targets[0].ID, 10) {
		t.Fatalf("expected reset to lowest tier, got %s", value)
	}
}

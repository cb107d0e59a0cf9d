package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earnpro/referralpro/internal/services/referral/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/referral.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store *Store, userID int64, code string) {
	t.Helper()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	if err := store.CreateUser(context.Background(), storage.User{
		UserID:       userID,
		ReferralCode: code,
		Language:     "en-US",
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("create user %d: %v", userID, err)
	}
}

func TestUserRoundTripAndCodeLookup(t *testing.T) {
	store := openTestStore(t)

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	if err := store.CreateUser(context.Background(), storage.User{
		UserID:       100,
		Username:     "alice",
		FirstName:    "Alice",
		Language:     "en-US",
		ReferralCode: "ref_alicecode",
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := store.GetUser(context.Background(), 100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("username = %q, want alice", got.Username)
	}
	if got.ReferredBy != 0 {
		t.Fatalf("referred_by = %d, want 0", got.ReferredBy)
	}
	if !got.TargetReachedAt.IsZero() {
		t.Fatalf("target_reached_at = %v, want zero", got.TargetReachedAt)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}

	byCode, err := store.GetUserByReferralCode(context.Background(), "ref_alicecode")
	if err != nil {
		t.Fatalf("get user by code: %v", err)
	}
	if byCode.UserID != 100 {
		t.Fatalf("user_id = %d, want 100", byCode.UserID)
	}

	if _, err := store.GetUser(context.Background(), 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing user err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetUserByReferralCode(context.Background(), "ref_unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get unknown code err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserDuplicateReturnsAlreadyExists(t *testing.T) {
	store := openTestStore(t)

	seedUser(t, store, 100, "ref_first")
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	err := store.CreateUser(context.Background(), storage.User{
		UserID:       100,
		ReferralCode: "ref_second",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}

	err = store.CreateUser(context.Background(), storage.User{
		UserID:       200,
		ReferralCode: "ref_first",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate code err = %v, want ErrAlreadyExists", err)
	}
}

func TestLinkReferrerFirstWriteWins(t *testing.T) {
	store := openTestStore(t)

	seedUser(t, store, 100, "ref_referrer")
	seedUser(t, store, 200, "ref_referred")

	linked, err := store.LinkReferrer(context.Background(), 200, 100)
	if err != nil {
		t.Fatalf("link referrer: %v", err)
	}
	if !linked {
		t.Fatal("first link reported no transition")
	}

	linked, err = store.LinkReferrer(context.Background(), 200, 300)
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if linked {
		t.Fatal("second link reported a transition")
	}

	got, err := store.GetUser(context.Background(), 200)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ReferredBy != 100 {
		t.Fatalf("referred_by = %d, want 100", got.ReferredBy)
	}

	if _, err := store.LinkReferrer(context.Background(), 999, 100); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("link missing user err = %v, want ErrNotFound", err)
	}
}

func TestMarkRewardClaimedSingleWinner(t *testing.T) {
	store := openTestStore(t)

	seedUser(t, store, 100, "ref_claimer")
	reachedAt := time.Date(2026, time.March, 2, 18, 30, 0, 0, time.UTC)

	claimed, err := store.MarkRewardClaimed(context.Background(), 100, reachedAt)
	if err != nil {
		t.Fatalf("mark claimed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim reported no transition")
	}

	claimed, err = store.MarkRewardClaimed(context.Background(), 100, reachedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("second claim reported a transition")
	}

	got, err := store.GetUser(context.Background(), 100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.RewardClaimed {
		t.Fatal("reward_claimed not set")
	}
	if !got.TargetReachedAt.Equal(reachedAt) {
		t.Fatalf("target_reached_at = %v, want %v", got.TargetReachedAt, reachedAt)
	}

	if _, err := store.MarkRewardClaimed(context.Background(), 999, reachedAt); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("claim missing user err = %v, want ErrNotFound", err)
	}
}

func TestEdgeLifecycleAndStats(t *testing.T) {
	store := openTestStore(t)

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	created, err := store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 100,
		ReferredID: 200,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("put edge: %v", err)
	}
	if !created {
		t.Fatal("first put edge reported no insert")
	}

	created, err = store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 300,
		ReferredID: 200,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("duplicate put edge: %v", err)
	}
	if created {
		t.Fatal("duplicate put edge reported an insert")
	}

	edge, err := store.GetEdgeByReferred(context.Background(), 200)
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if edge.ReferrerID != 100 {
		t.Fatalf("referrer_id = %d, want 100", edge.ReferrerID)
	}
	if edge.Active {
		t.Fatal("new edge is active")
	}

	flipped, err := store.SetEdgeActive(context.Background(), 100, 200, true)
	if err != nil {
		t.Fatalf("activate edge: %v", err)
	}
	if !flipped {
		t.Fatal("activation reported no transition")
	}
	flipped, err = store.SetEdgeActive(context.Background(), 100, 200, true)
	if err != nil {
		t.Fatalf("repeat activate edge: %v", err)
	}
	if flipped {
		t.Fatal("repeat activation reported a transition")
	}

	if _, err := store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 100,
		ReferredID: 300,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("put second edge: %v", err)
	}
	if _, err := store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 100,
		ReferredID: 400,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("put third edge: %v", err)
	}

	stats, err := store.EdgeStats(context.Background(), 100)
	if err != nil {
		t.Fatalf("edge stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.Active != 2 {
		t.Fatalf("active = %d, want 2", stats.Active)
	}

	flipped, err = store.SetEdgeActive(context.Background(), 100, 200, false)
	if err != nil {
		t.Fatalf("deactivate edge: %v", err)
	}
	if !flipped {
		t.Fatal("deactivation reported no transition")
	}
	stats, err = store.EdgeStats(context.Background(), 100)
	if err != nil {
		t.Fatalf("edge stats after deactivate: %v", err)
	}
	if stats.Active != 1 {
		t.Fatalf("active after deactivate = %d, want 1", stats.Active)
	}
}

func TestTargetUpsertAndSettings(t *testing.T) {
	store := openTestStore(t)

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	id, err := store.PutTarget(context.Background(), storage.Target{
		Level:             5,
		RewardDescription: "starter reward",
		RewardAmount:      10,
		Active:            true,
		CreatedAt:         now,
	})
	if err != nil {
		t.Fatalf("put target: %v", err)
	}
	if id == 0 {
		t.Fatal("target id is zero")
	}

	again, err := store.PutTarget(context.Background(), storage.Target{
		Level:             5,
		RewardDescription: "updated reward",
		RewardAmount:      25,
		Active:            true,
		CreatedAt:         now,
	})
	if err != nil {
		t.Fatalf("upsert target: %v", err)
	}
	if again != id {
		t.Fatalf("upsert id = %d, want %d", again, id)
	}

	target, err := store.GetTarget(context.Background(), id)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if target.RewardDescription != "updated reward" {
		t.Fatalf("reward = %q, want updated reward", target.RewardDescription)
	}
	if target.RewardAmount != 25 {
		t.Fatalf("reward amount = %v, want 25", target.RewardAmount)
	}

	inactiveID, err := store.PutTarget(context.Background(), storage.Target{
		Level:     10,
		Active:    false,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("put inactive target: %v", err)
	}
	if _, err := store.GetTarget(context.Background(), inactiveID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get inactive target err = %v, want ErrNotFound", err)
	}

	targets, err := store.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("targets len = %d, want 1", len(targets))
	}

	if err := store.PutSetting(context.Background(), storage.SettingActiveTargetID, "7"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	value, err := store.GetSetting(context.Background(), storage.SettingActiveTargetID)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != "7" {
		t.Fatalf("setting = %q, want 7", value)
	}
	if _, err := store.GetSetting(context.Background(), "missing_key"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing setting err = %v, want ErrNotFound", err)
	}
}

func TestInviteLinkFirstWriterWins(t *testing.T) {
	store := openTestStore(t)

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	stored, err := store.PutInviteLink(context.Background(), storage.InviteLink{
		UserID:       100,
		ReferralCode: "ref_code",
		Link:         "https://t.me/+abc",
		Name:         "Referral-ref_code",
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("put invite link: %v", err)
	}
	if stored.Link != "https://t.me/+abc" {
		t.Fatalf("link = %q, want https://t.me/+abc", stored.Link)
	}

	stored, err = store.PutInviteLink(context.Background(), storage.InviteLink{
		UserID:       100,
		ReferralCode: "ref_code",
		Link:         "https://t.me/+other",
		CreatedAt:    now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("second put invite link: %v", err)
	}
	if stored.Link != "https://t.me/+abc" {
		t.Fatalf("second put returned %q, want first link", stored.Link)
	}

	if _, err := store.GetInviteLink(context.Background(), 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing invite link err = %v, want ErrNotFound", err)
	}
}

func TestStatsAggregation(t *testing.T) {
	store := openTestStore(t)

	seedUser(t, store, 100, "ref_a")
	seedUser(t, store, 200, "ref_b")
	seedUser(t, store, 300, "ref_c")

	if err := store.SetChannelMember(context.Background(), 200, true); err != nil {
		t.Fatalf("set channel member: %v", err)
	}
	if _, err := store.MarkRewardClaimed(context.Background(), 100, time.Now()); err != nil {
		t.Fatalf("mark claimed: %v", err)
	}
	now := time.Now().UTC()
	if _, err := store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 100, ReferredID: 200, Active: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}
	if _, err := store.PutEdge(context.Background(), storage.Edge{
		ReferrerID: 100, ReferredID: 300, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 3 {
		t.Fatalf("total users = %d, want 3", stats.TotalUsers)
	}
	if stats.ChannelMembers != 1 {
		t.Fatalf("channel members = %d, want 1", stats.ChannelMembers)
	}
	if stats.TotalReferrals != 2 {
		t.Fatalf("total referrals = %d, want 2", stats.TotalReferrals)
	}
	if stats.ActiveReferrals != 1 {
		t.Fatalf("active referrals = %d, want 1", stats.ActiveReferrals)
	}
	if stats.RewardsClaimed != 1 {
		t.Fatalf("rewards claimed = %d, want 1", stats.RewardsClaimed)
	}
}

func TestSetLanguageAndChannelMember(t *testing.T) {
	store := openTestStore(t)

	seedUser(t, store, 100, "ref_lang")
	if err := store.SetLanguage(context.Background(), 100, "es-ES"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	got, err := store.GetUser(context.Background(), 100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Language != "es-ES" {
		t.Fatalf("language = %q, want es-ES", got.Language)
	}

	if err := store.SetLanguage(context.Background(), 999, "es-ES"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("set language missing user err = %v, want ErrNotFound", err)
	}
	if err := store.SetChannelMember(context.Background(), 999, true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("set member missing user err = %v, want ErrNotFound", err)
	}
}

// Package storage defines persistence contracts for referral service state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates an insert collided with an existing record.
var ErrAlreadyExists = errors.New("record already exists")

// SettingActiveTargetID is the settings key holding the id of the
// currently active referral target.
const SettingActiveTargetID = "active_referral_target_id"

// User stores one Telegram user known to the referral program.
//
// ReferredBy is zero when the user joined without a referral code.
// TargetReachedAt is the zero time until the reward is claimed.
type User struct {
	UserID          int64
	Username        string
	FirstName       string
	LastName        string
	Language        string
	ReferralCode    string
	ReferredBy      int64
	ChannelMember   bool
	RewardClaimed   bool
	TargetReachedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Edge stores one directed referral relationship. An edge counts toward
// the referrer's progress only while Active is set.
type Edge struct {
	ReferrerID int64
	ReferredID int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EdgeStats aggregates one referrer's edges.
type EdgeStats struct {
	Active int
	Total  int
}

// Target stores one configurable referral reward tier.
type Target struct {
	ID                int64
	Level             int
	RewardDescription string
	RewardAmount      float64
	Active            bool
	CreatedAt         time.Time
}

// InviteLink stores one per-user channel invite link issued at claim time.
type InviteLink struct {
	UserID       int64
	ReferralCode string
	Link         string
	Name         string
	CreatedAt    time.Time
}

// Stats aggregates program-wide counters for reporting.
type Stats struct {
	TotalUsers      int
	ChannelMembers  int
	TotalReferrals  int
	ActiveReferrals int
	RewardsClaimed  int
}

// UserStore persists referral program users.
//
// LinkReferrer and MarkRewardClaimed are conditional single-row writes:
// they report transitioned=false without error when the guarded column
// was already set, so concurrent callers converge without transactions.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID int64) (User, error)
	GetUserByReferralCode(ctx context.Context, code string) (User, error)
	LinkReferrer(ctx context.Context, userID int64, referrerID int64) (bool, error)
	SetChannelMember(ctx context.Context, userID int64, member bool) error
	SetLanguage(ctx context.Context, userID int64, locale string) error
	MarkRewardClaimed(ctx context.Context, userID int64, reachedAt time.Time) (bool, error)
}

// EdgeStore persists directed referral edges.
//
// PutEdge inserts at most one edge per referred user and reports
// created=false when the referred user already has one. SetEdgeActive
// flips is_active only when the stored value differs and reports
// whether the flip happened.
type EdgeStore interface {
	PutEdge(ctx context.Context, edge Edge) (bool, error)
	GetEdgeByReferred(ctx context.Context, referredID int64) (Edge, error)
	SetEdgeActive(ctx context.Context, referrerID int64, referredID int64, active bool) (bool, error)
	EdgeStats(ctx context.Context, referrerID int64) (EdgeStats, error)
}

// TargetStore persists referral reward tiers.
type TargetStore interface {
	PutTarget(ctx context.Context, target Target) (int64, error)
	GetTarget(ctx context.Context, targetID int64) (Target, error)
	ListTargets(ctx context.Context) ([]Target, error)
}

// SettingStore persists program-wide key/value settings.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key string, value string) error
}

// InviteLinkStore persists per-user invite links. PutInviteLink keeps
// the first stored link for a user and returns the surviving record.
type InviteLinkStore interface {
	GetInviteLink(ctx context.Context, userID int64) (InviteLink, error)
	PutInviteLink(ctx context.Context, link InviteLink) (InviteLink, error)
}

// StatsStore aggregates program-wide counters.
type StatsStore interface {
	Stats(ctx context.Context) (Stats, error)
}

// Store combines every persistence contract the referral service needs.
type Store interface {
	UserStore
	EdgeStore
	TargetStore
	SettingStore
	InviteLinkStore
	StatsStore
}

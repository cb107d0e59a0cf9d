// Package domain implements the referral progression rules: recording
// referral edges, activating them on channel membership, deriving progress
// against the active target and settling one-time reward claims.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/earnpro/referralpro/internal/platform/errors"
	"github.com/earnpro/referralpro/internal/services/referral/storage"
)

const codeMintAttempts = 5

// InviteLinkCreator issues fresh channel invite links. The bot provides a
// Telegram-backed implementation; read-only consumers may leave it nil.
type InviteLinkCreator interface {
	CreateInviteLink(ctx context.Context, name string) (string, error)
}

// Engine applies referral rules on top of the persistence contracts. All
// state transitions go through conditional single-row writes, so concurrent
// updates converge without transactions.
type Engine struct {
	store storage.Store
	links InviteLinkCreator
	clock func() time.Time
}

// NewEngine creates a referral engine backed by the provided store.
func NewEngine(store storage.Store, links InviteLinkCreator) *Engine {
	return &Engine{
		store: store,
		links: links,
		clock: time.Now,
	}
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return apperrors.New(apperrors.CodeStoreUnavailable, "referral store is not configured")
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func storeError(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, op, err)
}

// NewUser carries the Telegram profile fields captured at registration.
type NewUser struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Language  string
}

// RegisterUser ensures a user exists and owns a referral code. It reports
// created=false when the user was already registered; repeated /start
// commands never mint a second code.
func (e *Engine) RegisterUser(ctx context.Context, user NewUser) (storage.User, bool, error) {
	if err := e.ready(); err != nil {
		return storage.User{}, false, err
	}
	if user.UserID == 0 {
		return storage.User{}, false, fmt.Errorf("user id is required")
	}

	existing, err := e.store.GetUser(ctx, user.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, false, storeError("get user", err)
	}

	for attempt := 0; attempt < codeMintAttempts; attempt++ {
		code, err := NewReferralCode(user.UserID)
		if err != nil {
			return storage.User{}, false, fmt.Errorf("mint referral code: %w", err)
		}
		now := e.now()
		record := storage.User{
			UserID:       user.UserID,
			Username:     strings.TrimSpace(user.Username),
			FirstName:    strings.TrimSpace(user.FirstName),
			LastName:     strings.TrimSpace(user.LastName),
			Language:     strings.TrimSpace(user.Language),
			ReferralCode: code,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = e.store.CreateUser(ctx, record)
		if err == nil {
			return record, true, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return storage.User{}, false, storeError("create user", err)
		}
		// Either a concurrent registration won or the minted code collided.
		existing, getErr := e.store.GetUser(ctx, user.UserID)
		if getErr == nil {
			return existing, false, nil
		}
		if !errors.Is(getErr, storage.ErrNotFound) {
			return storage.User{}, false, storeError("get user", getErr)
		}
	}
	return storage.User{}, false, fmt.Errorf("mint referral code: attempts exhausted")
}

// ResolveReferralCode returns the user owning a referral code.
func (e *Engine) ResolveReferralCode(ctx context.Context, code string) (storage.User, error) {
	if err := e.ready(); err != nil {
		return storage.User{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return storage.User{}, apperrors.New(apperrors.CodeNotFound, "referral code is required")
	}
	user, err := e.store.GetUserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, apperrors.New(apperrors.CodeNotFound, "referral code is unknown")
		}
		return storage.User{}, storeError("get user by referral code", err)
	}
	return user, nil
}

// RecordReferral links a registered user to the owner of a referral code
// and records the inactive edge. The first referrer wins; replaying the
// same code for the same user returns the existing edge, a different code
// reports ALREADY_REFERRED.
func (e *Engine) RecordReferral(ctx context.Context, code string, referredID int64) (storage.Edge, error) {
	if err := e.ready(); err != nil {
		return storage.Edge{}, err
	}
	if referredID == 0 {
		return storage.Edge{}, fmt.Errorf("referred id is required")
	}

	referrer, err := e.ResolveReferralCode(ctx, code)
	if err != nil {
		return storage.Edge{}, err
	}
	if referrer.UserID == referredID {
		return storage.Edge{}, apperrors.New(apperrors.CodeSelfReferral, "user cannot refer themselves")
	}

	linked, err := e.store.LinkReferrer(ctx, referredID, referrer.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Edge{}, apperrors.New(apperrors.CodeNotFound, "referred user is not registered")
		}
		return storage.Edge{}, storeError("link referrer", err)
	}
	if !linked {
		referred, err := e.store.GetUser(ctx, referredID)
		if err != nil {
			return storage.Edge{}, storeError("get user", err)
		}
		if referred.ReferredBy != referrer.UserID {
			return storage.Edge{}, apperrors.WithMetadata(
				apperrors.CodeAlreadyReferred,
				"user already has a referrer",
				map[string]string{"referrer_id": strconv.FormatInt(referred.ReferredBy, 10)},
			)
		}
	}

	now := e.now()
	if _, err := e.store.PutEdge(ctx, storage.Edge{
		ReferrerID: referrer.UserID,
		ReferredID: referredID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return storage.Edge{}, storeError("put edge", err)
	}
	edge, err := e.store.GetEdgeByReferred(ctx, referredID)
	if err != nil {
		return storage.Edge{}, storeError("get edge", err)
	}
	return edge, nil
}

// OnChannelJoin records channel membership and activates the user's
// referral edge. It returns the referrer to notify, or zero when the join
// did not flip an edge: unknown users, unreferred users and replayed join
// events all report zero.
func (e *Engine) OnChannelJoin(ctx context.Context, userID int64) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, fmt.Errorf("user id is required")
	}

	if err := e.store.SetChannelMember(ctx, userID, true); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, storeError("set channel member", err)
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, storeError("get user", err)
	}
	if user.ReferredBy == 0 {
		return 0, nil
	}
	activated, err := e.store.SetEdgeActive(ctx, user.ReferredBy, userID, true)
	if err != nil {
		return 0, storeError("set edge active", err)
	}
	if !activated {
		return 0, nil
	}
	return user.ReferredBy, nil
}

// OnChannelLeave records the departure and deactivates the user's referral
// edge. It returns the referrer whose progress shrank, or zero when the
// leave did not flip an edge.
func (e *Engine) OnChannelLeave(ctx context.Context, userID int64) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, fmt.Errorf("user id is required")
	}

	if err := e.store.SetChannelMember(ctx, userID, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, storeError("set channel member", err)
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, storeError("get user", err)
	}
	if user.ReferredBy == 0 {
		return 0, nil
	}
	deactivated, err := e.store.SetEdgeActive(ctx, user.ReferredBy, userID, false)
	if err != nil {
		return 0, storeError("set edge active", err)
	}
	if !deactivated {
		return 0, nil
	}
	return user.ReferredBy, nil
}

// activeTarget resolves the active target from settings. A missing
// setting, an unparsable value or a deactivated target all degrade to
// "no target" rather than failing.
func (e *Engine) activeTarget(ctx context.Context) (storage.Target, bool, error) {
	value, err := e.store.GetSetting(ctx, storage.SettingActiveTargetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Target{}, false, nil
		}
		return storage.Target{}, false, storeError("get setting", err)
	}
	targetID, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return storage.Target{}, false, nil
	}
	target, err := e.store.GetTarget(ctx, targetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Target{}, false, nil
		}
		return storage.Target{}, false, storeError("get target", err)
	}
	return target, true, nil
}

// Progress returns a registered user's progress against the active target.
func (e *Engine) Progress(ctx context.Context, userID int64) (Progress, error) {
	if err := e.ready(); err != nil {
		return Progress{}, err
	}
	if userID == 0 {
		return Progress{}, fmt.Errorf("user id is required")
	}

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Progress{}, apperrors.New(apperrors.CodeNotFound, "user is not registered")
		}
		return Progress{}, storeError("get user", err)
	}
	stats, err := e.store.EdgeStats(ctx, userID)
	if err != nil {
		return Progress{}, storeError("edge stats", err)
	}
	target, targetSet, err := e.activeTarget(ctx)
	if err != nil {
		return Progress{}, err
	}
	return ComputeProgress(stats.Active, stats.Total, target.Level, targetSet), nil
}

// ClaimResult reports the outcome of a reward claim.
type ClaimResult struct {
	AlreadyClaimed bool
	InviteLink     string
	Reward         string
	Progress       Progress
}

// ClaimReward settles a one-time reward claim. The reward flag flips
// exactly once; a repeated claim reports AlreadyClaimed and returns the
// stored invite link instead of failing.
func (e *Engine) ClaimReward(ctx context.Context, userID int64) (ClaimResult, error) {
	if err := e.ready(); err != nil {
		return ClaimResult{}, err
	}
	if userID == 0 {
		return ClaimResult{}, fmt.Errorf("user id is required")
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ClaimResult{}, apperrors.New(apperrors.CodeNotFound, "user is not registered")
		}
		return ClaimResult{}, storeError("get user", err)
	}

	stats, err := e.store.EdgeStats(ctx, userID)
	if err != nil {
		return ClaimResult{}, storeError("edge stats", err)
	}
	target, targetSet, err := e.activeTarget(ctx)
	if err != nil {
		return ClaimResult{}, err
	}
	progress := ComputeProgress(stats.Active, stats.Total, target.Level, targetSet)

	if user.RewardClaimed {
		link, err := e.ensureInviteLink(ctx, user)
		if err != nil {
			return ClaimResult{}, err
		}
		return ClaimResult{AlreadyClaimed: true, InviteLink: link, Reward: target.RewardDescription, Progress: progress}, nil
	}

	if !progress.TargetSet {
		return ClaimResult{}, apperrors.New(apperrors.CodeNoActiveTarget, "no active referral target is configured")
	}
	if !progress.TargetReached {
		return ClaimResult{}, apperrors.WithMetadata(
			apperrors.CodeNotEligible,
			"referral target not reached",
			map[string]string{
				"active": strconv.Itoa(progress.ActiveReferrals),
				"target": strconv.Itoa(progress.Target),
			},
		)
	}

	claimed, err := e.store.MarkRewardClaimed(ctx, userID, e.now())
	if err != nil {
		return ClaimResult{}, storeError("mark reward claimed", err)
	}
	link, err := e.ensureInviteLink(ctx, user)
	if err != nil {
		return ClaimResult{}, err
	}
	if !claimed {
		// A concurrent claim won the flip; report the settled state.
		return ClaimResult{AlreadyClaimed: true, InviteLink: link, Reward: target.RewardDescription, Progress: progress}, nil
	}
	return ClaimResult{InviteLink: link, Reward: target.RewardDescription, Progress: progress}, nil
}

// ensureInviteLink returns the user's stored invite link, creating one on
// first use. Concurrent creators converge on the first stored link.
func (e *Engine) ensureInviteLink(ctx context.Context, user storage.User) (string, error) {
	stored, err := e.store.GetInviteLink(ctx, user.UserID)
	if err == nil {
		return stored.Link, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", storeError("get invite link", err)
	}
	if e.links == nil {
		return "", fmt.Errorf("invite link creator is not configured")
	}
	name := "Referral-" + user.ReferralCode
	url, err := e.links.CreateInviteLink(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	stored, err = e.store.PutInviteLink(ctx, storage.InviteLink{
		UserID:       user.UserID,
		ReferralCode: user.ReferralCode,
		Link:         url,
		Name:         name,
		CreatedAt:    e.now(),
	})
	if err != nil {
		return "", storeError("put invite link", err)
	}
	return stored.Link, nil
}

// InviteLink returns a registered user's channel invite link, creating
// one on first use.
func (e *Engine) InviteLink(ctx context.Context, userID int64) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	user, err := e.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return e.ensureInviteLink(ctx, user)
}

// SetLanguage records a user's preferred locale.
func (e *Engine) SetLanguage(ctx context.Context, userID int64, locale string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("user id is required")
	}
	if err := e.store.SetLanguage(ctx, userID, locale); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "user is not registered")
		}
		return storeError("set language", err)
	}
	return nil
}

// GetUser returns one registered user.
func (e *Engine) GetUser(ctx context.Context, userID int64) (storage.User, error) {
	if err := e.ready(); err != nil {
		return storage.User{}, err
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, apperrors.New(apperrors.CodeNotFound, "user is not registered")
		}
		return storage.User{}, storeError("get user", err)
	}
	return user, nil
}

// AdminStats aggregates program-wide counters for the admin report.
func (e *Engine) AdminStats(ctx context.Context) (storage.Stats, error) {
	if err := e.ready(); err != nil {
		return storage.Stats{}, err
	}
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return storage.Stats{}, storeError("stats", err)
	}
	return stats, nil
}

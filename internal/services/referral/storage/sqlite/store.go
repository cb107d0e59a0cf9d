// Package sqlite provides a SQLite-backed referral storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/earnpro/referralpro/internal/platform/storage/sqlitemigrate"
	"github.com/earnpro/referralpro/internal/services/referral/storage"
	"github.com/earnpro/referralpro/internal/services/referral/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists referral state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Open opens a SQLite referral store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateUser inserts one referral program user.
func (s *Store) CreateUser(ctx context.Context, user storage.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if user.UserID == 0 {
		return fmt.Errorf("user id is required")
	}
	referralCode := strings.TrimSpace(user.ReferralCode)
	if referralCode == "" {
		return fmt.Errorf("referral code is required")
	}

	referredBy := sql.NullInt64{}
	if user.ReferredBy != 0 {
		referredBy = sql.NullInt64{Int64: user.ReferredBy, Valid: true}
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (user_id, username, first_name, last_name, language,
		   referral_code, referred_by, channel_member, reward_claimed,
		   target_reached_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.UserID,
		strings.TrimSpace(user.Username),
		strings.TrimSpace(user.FirstName),
		strings.TrimSpace(user.LastName),
		strings.TrimSpace(user.Language),
		referralCode,
		referredBy,
		boolToInt(user.ChannelMember),
		boolToInt(user.RewardClaimed),
		toMillis(user.TargetReachedAt),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `user_id, username, first_name, last_name, language,
	 referral_code, referred_by, channel_member, reward_claimed,
	 target_reached_at, created_at, updated_at`

func scanUser(row *sql.Row) (storage.User, error) {
	var (
		user            storage.User
		referredBy      sql.NullInt64
		channelMember   int64
		rewardClaimed   int64
		targetReachedAt int64
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Language,
		&user.ReferralCode,
		&referredBy,
		&channelMember,
		&rewardClaimed,
		&targetReachedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, storage.ErrNotFound
		}
		return storage.User{}, err
	}
	if referredBy.Valid {
		user.ReferredBy = referredBy.Int64
	}
	user.ChannelMember = channelMember != 0
	user.RewardClaimed = rewardClaimed != 0
	user.TargetReachedAt = fromMillis(targetReachedAt)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// GetUser returns one referral program user.
func (s *Store) GetUser(ctx context.Context, userID int64) (storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return storage.User{}, err
	}
	if userID == 0 {
		return storage.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`,
		userID,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, err
		}
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByReferralCode returns the user owning a referral code.
func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return storage.User{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return storage.User{}, fmt.Errorf("referral code is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = ?`,
		code,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, err
		}
		return storage.User{}, fmt.Errorf("get user by referral code: %w", err)
	}
	return user, nil
}

// LinkReferrer sets referred_by if and only if it is still unset. It
// reports false without error when another referrer already won.
func (s *Store) LinkReferrer(ctx context.Context, userID int64, referrerID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if userID == 0 {
		return false, fmt.Errorf("user id is required")
	}
	if referrerID == 0 {
		return false, fmt.Errorf("referrer id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET referred_by = ?, updated_at = ?
		 WHERE user_id = ? AND referred_by IS NULL`,
		referrerID,
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("link referrer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link referrer: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

// SetChannelMember records whether a user is currently a channel member.
func (s *Store) SetChannelMember(ctx context.Context, userID int64, member bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET channel_member = ?, updated_at = ? WHERE user_id = ?`,
		boolToInt(member),
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return fmt.Errorf("set channel member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set channel member: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetLanguage records a user's preferred locale.
func (s *Store) SetLanguage(ctx context.Context, userID int64, locale string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("user id is required")
	}
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return fmt.Errorf("locale is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET language = ?, updated_at = ? WHERE user_id = ?`,
		locale,
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkRewardClaimed flips reward_claimed from unset to set and stamps the
// time the target was reached. It reports false without error when the
// reward was already claimed, so exactly one concurrent caller wins.
func (s *Store) MarkRewardClaimed(ctx context.Context, userID int64, reachedAt time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if userID == 0 {
		return false, fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET reward_claimed = 1, target_reached_at = ?, updated_at = ?
		 WHERE user_id = ? AND reward_claimed = 0`,
		toMillis(reachedAt),
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark reward claimed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reward claimed: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

// PutEdge inserts one directed referral edge. Each referred user holds at
// most one edge; the first insert wins and later ones report false.
func (s *Store) PutEdge(ctx context.Context, edge storage.Edge) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if edge.ReferrerID == 0 {
		return false, fmt.Errorf("referrer id is required")
	}
	if edge.ReferredID == 0 {
		return false, fmt.Errorf("referred id is required")
	}
	if edge.ReferrerID == edge.ReferredID {
		return false, fmt.Errorf("referred id must differ from referrer id")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO referral_edges
		   (referred_id, referrer_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		edge.ReferredID,
		edge.ReferrerID,
		boolToInt(edge.Active),
		toMillis(edge.CreatedAt),
		toMillis(edge.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("put edge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put edge: %w", err)
	}
	return affected > 0, nil
}

// GetEdgeByReferred returns the referral edge pointing at a referred user.
func (s *Store) GetEdgeByReferred(ctx context.Context, referredID int64) (storage.Edge, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Edge{}, err
	}
	if referredID == 0 {
		return storage.Edge{}, fmt.Errorf("referred id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT referrer_id, referred_id, is_active, created_at, updated_at
		 FROM referral_edges
		 WHERE referred_id = ?`,
		referredID,
	)
	var (
		edge      storage.Edge
		active    int64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&edge.ReferrerID, &edge.ReferredID, &active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Edge{}, storage.ErrNotFound
		}
		return storage.Edge{}, fmt.Errorf("get edge: %w", err)
	}
	edge.Active = active != 0
	edge.CreatedAt = fromMillis(createdAt)
	edge.UpdatedAt = fromMillis(updatedAt)
	return edge, nil
}

// SetEdgeActive flips an edge's is_active flag. It reports false without
// error when the flag already holds the requested value or no edge exists,
// so repeated membership events do not double-count.
func (s *Store) SetEdgeActive(ctx context.Context, referrerID int64, referredID int64, active bool) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if referrerID == 0 {
		return false, fmt.Errorf("referrer id is required")
	}
	if referredID == 0 {
		return false, fmt.Errorf("referred id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE referral_edges SET is_active = ?, updated_at = ?
		 WHERE referrer_id = ? AND referred_id = ? AND is_active = ?`,
		boolToInt(active),
		toMillis(time.Now()),
		referrerID,
		referredID,
		boolToInt(!active),
	)
	if err != nil {
		return false, fmt.Errorf("set edge active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set edge active: %w", err)
	}
	return affected > 0, nil
}

// EdgeStats aggregates one referrer's edges.
func (s *Store) EdgeStats(ctx context.Context, referrerID int64) (storage.EdgeStats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.EdgeStats{}, err
	}
	if referrerID == 0 {
		return storage.EdgeStats{}, fmt.Errorf("referrer id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active), 0)
		 FROM referral_edges
		 WHERE referrer_id = ?`,
		referrerID,
	)
	var stats storage.EdgeStats
	if err := row.Scan(&stats.Total, &stats.Active); err != nil {
		return storage.EdgeStats{}, fmt.Errorf("edge stats: %w", err)
	}
	return stats, nil
}

// PutTarget upserts one reward tier keyed by level and returns its id.
func (s *Store) PutTarget(ctx context.Context, target storage.Target) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if target.Level <= 0 {
		return 0, fmt.Errorf("target level must be greater than zero")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO referral_targets (level, reward_description, reward_amount, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(level) DO UPDATE SET
		   reward_description = excluded.reward_description,
		   reward_amount = excluded.reward_amount,
		   is_active = excluded.is_active`,
		target.Level,
		strings.TrimSpace(target.RewardDescription),
		target.RewardAmount,
		boolToInt(target.Active),
		toMillis(target.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("put target: %w", err)
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id FROM referral_targets WHERE level = ?`,
		target.Level,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("put target: %w", err)
	}
	return id, nil
}

// GetTarget returns one active reward tier by id.
func (s *Store) GetTarget(ctx context.Context, targetID int64) (storage.Target, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Target{}, err
	}
	if targetID == 0 {
		return storage.Target{}, fmt.Errorf("target id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, level, reward_description, reward_amount, is_active, created_at
		 FROM referral_targets
		 WHERE id = ? AND is_active = 1`,
		targetID,
	)
	var (
		target    storage.Target
		active    int64
		createdAt int64
	)
	err := row.Scan(&target.ID, &target.Level, &target.RewardDescription, &target.RewardAmount, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Target{}, storage.ErrNotFound
		}
		return storage.Target{}, fmt.Errorf("get target: %w", err)
	}
	target.Active = active != 0
	target.CreatedAt = fromMillis(createdAt)
	return target, nil
}

// ListTargets returns every active reward tier ordered by level.
func (s *Store) ListTargets(ctx context.Context) ([]storage.Target, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, level, reward_description, reward_amount, is_active, created_at
		 FROM referral_targets
		 WHERE is_active = 1
		 ORDER BY level ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []storage.Target
	for rows.Next() {
		var (
			target    storage.Target
			active    int64
			createdAt int64
		)
		if err := rows.Scan(&target.ID, &target.Level, &target.RewardDescription, &target.RewardAmount, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		target.Active = active != 0
		target.CreatedAt = fromMillis(createdAt)
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return targets, nil
}

// GetSetting returns one program-wide setting value.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("setting key is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT value FROM settings WHERE key = ?`,
		key,
	)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// PutSetting upserts one program-wide setting value.
func (s *Store) PutSetting(ctx context.Context, key string, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("setting key is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO settings (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key,
		value,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

// GetInviteLink returns one user's stored invite link.
func (s *Store) GetInviteLink(ctx context.Context, userID int64) (storage.InviteLink, error) {
	if err := s.ready(ctx); err != nil {
		return storage.InviteLink{}, err
	}
	if userID == 0 {
		return storage.InviteLink{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, referral_code, link, name, created_at
		 FROM invite_links
		 WHERE user_id = ?`,
		userID,
	)
	var (
		link      storage.InviteLink
		createdAt int64
	)
	err := row.Scan(&link.UserID, &link.ReferralCode, &link.Link, &link.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.InviteLink{}, storage.ErrNotFound
		}
		return storage.InviteLink{}, fmt.Errorf("get invite link: %w", err)
	}
	link.CreatedAt = fromMillis(createdAt)
	return link, nil
}

// PutInviteLink stores one user's invite link. The first stored link wins
// and is always the one returned.
func (s *Store) PutInviteLink(ctx context.Context, link storage.InviteLink) (storage.InviteLink, error) {
	if err := s.ready(ctx); err != nil {
		return storage.InviteLink{}, err
	}
	if link.UserID == 0 {
		return storage.InviteLink{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(link.Link) == "" {
		return storage.InviteLink{}, fmt.Errorf("invite link is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO invite_links (user_id, referral_code, link, name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		link.UserID,
		strings.TrimSpace(link.ReferralCode),
		strings.TrimSpace(link.Link),
		strings.TrimSpace(link.Name),
		toMillis(link.CreatedAt),
	)
	if err != nil {
		return storage.InviteLink{}, fmt.Errorf("put invite link: %w", err)
	}
	stored, err := s.GetInviteLink(ctx, link.UserID)
	if err != nil {
		return storage.InviteLink{}, fmt.Errorf("put invite link: %w", err)
	}
	return stored, nil
}

// Stats aggregates program-wide counters.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Stats{}, err
	}

	var stats storage.Stats
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
		   COALESCE(SUM(channel_member), 0),
		   COALESCE(SUM(reward_claimed), 0)
		 FROM users`,
	)
	if err := row.Scan(&stats.TotalUsers, &stats.ChannelMembers, &stats.RewardsClaimed); err != nil {
		return storage.Stats{}, fmt.Errorf("stats: %w", err)
	}
	row = s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM referral_edges`,
	)
	if err := row.Scan(&stats.TotalReferrals, &stats.ActiveReferrals); err != nil {
		return storage.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

var _ storage.Store = (*Store)(nil)

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"account-identity-core/internal/account/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const accountColumns = `id, user_id, email, sns_id, provider, password_hash, is_verified, verification_code,
	verification_expiry, verification_attempts, is_locked, failed_attempts, has_completed_preferences,
	style_preferences, size, profile_desktop_url, profile_mobile_url, access_token_hash, refresh_token_hash,
	version, created_at, updated_at`

// Postgres error codes translated at the store boundary.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type accountRow struct {
	ID                      string         `db:"id"`
	UserID                  string         `db:"user_id"`
	Email                   sql.NullString `db:"email"`
	SnsID                   sql.NullString `db:"sns_id"`
	Provider                string         `db:"provider"`
	PasswordHash            sql.NullString `db:"password_hash"`
	IsVerified              bool           `db:"is_verified"`
	VerificationCode        sql.NullString `db:"verification_code"`
	VerificationExpiry      sql.NullTime   `db:"verification_expiry"`
	VerificationAttempts    int            `db:"verification_attempts"`
	IsLocked                bool           `db:"is_locked"`
	FailedAttempts          int            `db:"failed_attempts"`
	HasCompletedPreferences bool           `db:"has_completed_preferences"`
	StylePreferences        []byte         `db:"style_preferences"`
	Size                    sql.NullString `db:"size"`
	ProfileDesktopURL       string         `db:"profile_desktop_url"`
	ProfileMobileURL        string         `db:"profile_mobile_url"`
	AccessTokenHash         sql.NullString `db:"access_token_hash"`
	RefreshTokenHash        sql.NullString `db:"refresh_token_hash"`
	Version                 int64          `db:"version"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

// PostgresRepository stores accounts in Postgres through sqlx over the pgx driver.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByUserID returns the account for userID, or nil if not found.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
}

// GetBySnsID returns the non-email account holding snsID, or nil if not found.
func (r *PostgresRepository) GetBySnsID(ctx context.Context, snsID string) (*domain.Account, error) {
	if snsID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE sns_id = $1 AND provider <> 'email'`, snsID)
}

// GetByEmail returns the oldest account with email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)
		ORDER BY created_at, id LIMIT 1`, email)
}

// FindByEmailOrSnsID returns the oldest account matching email or any of snsIDs, or nil.
func (r *PostgresRepository) FindByEmailOrSnsID(ctx context.Context, email string, snsIDs []string) (*domain.Account, error) {
	if snsIDs == nil {
		snsIDs = []string{}
	}
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE ($1 <> '' AND lower(email) = lower($1)) OR sns_id = ANY($2)
		ORDER BY created_at, id LIMIT 1`, email, snsIDs)
}

// Create inserts a. Tombstoned ids and unique index collisions fail with ErrDuplicateIdentity.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	row, err := toRow(a)
	if err != nil {
		return err
	}
	const q = `INSERT INTO accounts (id, user_id, email, sns_id, provider, password_hash, is_verified,
		verification_code, verification_expiry, verification_attempts, is_locked, failed_attempts,
		has_completed_preferences, style_preferences, size, profile_desktop_url, profile_mobile_url,
		access_token_hash, refresh_token_hash)
	SELECT :id, :user_id, :email, :sns_id, :provider, :password_hash, :is_verified,
		:verification_code, :verification_expiry, :verification_attempts, :is_locked, :failed_attempts,
		:has_completed_preferences, :style_preferences, :size, :profile_desktop_url, :profile_mobile_url,
		:access_token_hash, :refresh_token_hash
	WHERE NOT EXISTS (SELECT 1 FROM deleted_account_ids WHERE id = :id)
	RETURNING version, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, row)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return translate(err)
		}
		return domain.ErrDuplicateIdentity
	}
	if err := rows.Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

// Update locks the row, applies mutate and writes the result with a bumped version.
func (r *PostgresRepository) Update(ctx context.Context, id string, expectedVersion int64, mutate MutateFunc) (*domain.Account, error) {
	var out *domain.Account
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && cur.Version != expectedVersion {
			return domain.ErrConflict
		}
		next := cur.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = cur.ID
		if err := next.Validate(); err != nil {
			return err
		}
		if err := writeAccount(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the account and records its id in deleted_account_ids.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO deleted_account_ids (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
		return err
	})
}

// Merge locks both rows in id order, deletes the secondary, then writes the merged primary.
// The secondary is removed first so partial unique indexes never see both claims at once.
func (r *PostgresRepository) Merge(ctx context.Context, primaryID, secondaryID string, merge MergeFunc) (*domain.Account, error) {
	var out *domain.Account
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		ids := []string{primaryID, secondaryID}
		sort.Strings(ids)
		locked := make(map[string]*domain.Account, 2)
		for _, id := range ids {
			a, err := lockAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			locked[id] = a
		}
		p, s := locked[primaryID], locked[secondaryID]
		next := p.Clone()
		if err := merge(next, s.Clone()); err != nil {
			return err
		}
		next.ID = p.ID
		if err := next.Validate(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, secondaryID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO deleted_account_ids (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, secondaryID); err != nil {
			return err
		}
		if err := writeAccount(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountIndexes returns the number of indexes defined on the accounts table.
func (r *PostgresRepository) CountIndexes(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM pg_indexes WHERE schemaname = current_schema() AND tablename = 'accounts'`)
	return n, err
}

func (r *PostgresRepository) getOne(ctx context.Context, q string, args ...any) (*domain.Account, error) {
	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain()
}

// inTx runs fn in a read-committed transaction and translates driver errors on the way out.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	return translate(tx.Commit())
}

func lockAccount(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Account, error) {
	var row accountRow
	err := tx.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func writeAccount(ctx context.Context, tx *sqlx.Tx, a *domain.Account) error {
	row, err := toRow(a)
	if err != nil {
		return err
	}
	const q = `UPDATE accounts SET user_id = :user_id, email = :email, sns_id = :sns_id, provider = :provider,
		password_hash = :password_hash, is_verified = :is_verified, verification_code = :verification_code,
		verification_expiry = :verification_expiry, verification_attempts = :verification_attempts,
		is_locked = :is_locked, failed_attempts = :failed_attempts,
		has_completed_preferences = :has_completed_preferences, style_preferences = :style_preferences,
		size = :size, profile_desktop_url = :profile_desktop_url, profile_mobile_url = :profile_mobile_url,
		access_token_hash = :access_token_hash, refresh_token_hash = :refresh_token_hash,
		version = version + 1, updated_at = now()
	WHERE id = :id
	RETURNING version, updated_at`
	rows, err := tx.NamedQuery(q, row)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return domain.ErrNotFound
	}
	return rows.Scan(&a.Version, &a.UpdatedAt)
}

// translate maps Postgres error codes onto domain error kinds and leaves other errors wrapped.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.ErrDuplicateIdentity
		case pgSerializationFailure, pgDeadlockDetected:
			return domain.ErrConflict
		}
		return fmt.Errorf("account store: %w", err)
	}
	return err
}

func toRow(a *domain.Account) (*accountRow, error) {
	styles := a.StylePreferences
	if styles == nil {
		styles = []domain.StylePreference{}
	}
	raw, err := json.Marshal(styles)
	if err != nil {
		return nil, err
	}
	row := &accountRow{
		ID:                      a.ID,
		UserID:                  a.UserID,
		Email:                   nullString(a.Email),
		SnsID:                   nullString(a.SnsID),
		Provider:                string(a.Provider),
		PasswordHash:            nullString(a.PasswordHash),
		IsVerified:              a.IsVerified,
		VerificationCode:        nullString(a.VerificationCode),
		VerificationAttempts:    a.VerificationAttempts,
		IsLocked:                a.IsLocked,
		FailedAttempts:          a.FailedAttempts,
		HasCompletedPreferences: a.HasCompletedPreferences,
		StylePreferences:        raw,
		Size:                    nullString(string(a.Size)),
		ProfileDesktopURL:       a.ProfileImage.DesktopURL,
		ProfileMobileURL:        a.ProfileImage.MobileURL,
		AccessTokenHash:         nullString(a.AccessTokenHash),
		RefreshTokenHash:        nullString(a.RefreshTokenHash),
	}
	if a.VerificationExpiry != nil {
		row.VerificationExpiry = sql.NullTime{Time: *a.VerificationExpiry, Valid: true}
	}
	if row.ProfileDesktopURL == "" {
		row.ProfileDesktopURL = domain.DefaultDesktopImageURL
	}
	if row.ProfileMobileURL == "" {
		row.ProfileMobileURL = domain.DefaultMobileImageURL
	}
	return row, nil
}

func (r *accountRow) toDomain() (*domain.Account, error) {
	a := &domain.Account{
		ID:                      r.ID,
		UserID:                  r.UserID,
		Email:                   r.Email.String,
		SnsID:                   r.SnsID.String,
		Provider:                domain.Provider(r.Provider),
		PasswordHash:            r.PasswordHash.String,
		IsVerified:              r.IsVerified,
		VerificationCode:        r.VerificationCode.String,
		VerificationAttempts:    r.VerificationAttempts,
		IsLocked:                r.IsLocked,
		FailedAttempts:          r.FailedAttempts,
		HasCompletedPreferences: r.HasCompletedPreferences,
		Size:                    domain.Size(r.Size.String),
		ProfileImage:            domain.ProfileImage{DesktopURL: r.ProfileDesktopURL, MobileURL: r.ProfileMobileURL},
		AccessTokenHash:         r.AccessTokenHash.String,
		RefreshTokenHash:        r.RefreshTokenHash.String,
		Version:                 r.Version,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if r.VerificationExpiry.Valid {
		t := r.VerificationExpiry.Time
		a.VerificationExpiry = &t
	}
	if len(r.StylePreferences) > 0 {
		if err := json.Unmarshal(r.StylePreferences, &a.StylePreferences); err != nil {
			return nil, fmt.Errorf("account %s: decode style_preferences: %w", r.ID, err)
		}
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

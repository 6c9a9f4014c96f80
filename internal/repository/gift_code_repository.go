package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/infestor/internal/model"
)

// topUpAttempts bounds retries when a generated code collides
const topUpAttempts = 3

var (
	// ErrDuplicateCode is returned when a code is inserted twice
	ErrDuplicateCode = errors.New("this gift code already exists, pick another one")
	// ErrGiftCodeNotFound is returned when no record matches the code
	ErrGiftCodeNotFound = errors.New("gift code not found")
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

// txBeginner is implemented by *sqlx.DB
type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	DriverName() string
}

// GiftCodeRepository handles gift code data operations
type GiftCodeRepository struct {
	db  DBExecutor
	now func() time.Time
}

// NewGiftCodeRepository creates a new gift code repository
func NewGiftCodeRepository(db DBExecutor) *GiftCodeRepository {
	return &GiftCodeRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// AddCode inserts an unused gift code. createdFor may be empty.
func (r *GiftCodeRepository) AddCode(ctx context.Context, code string, createdFor string) (*model.GiftCode, error) {
	query := r.db.Rebind(`
		INSERT INTO gift_codes (code, created_at, used_at, created_for)
		VALUES (?, ?, NULL, ?)
		ON CONFLICT (code) DO NOTHING
	`)

	giftCode := &model.GiftCode{
		Code:      code,
		CreatedAt: r.now(),
	}
	if createdFor != "" {
		giftCode.CreatedFor = &createdFor
	}

	result, err := r.db.ExecContext(ctx, query, giftCode.Code, giftCode.CreatedAt, giftCode.CreatedFor)
	if err != nil {
		return nil, fmt.Errorf("failed to add gift code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrDuplicateCode
	}

	return giftCode, nil
}

// GetGiftCode retrieves a gift code record
func (r *GiftCodeRepository) GetGiftCode(ctx context.Context, code string) (*model.GiftCode, error) {
	query := r.db.Rebind(`
		SELECT code, created_at, used_at, created_for
		FROM gift_codes
		WHERE code = ?
	`)

	var giftCode model.GiftCode
	if err := r.db.GetContext(ctx, &giftCode, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGiftCodeNotFound
		}
		return nil, fmt.Errorf("failed to get gift code: %w", err)
	}

	return &giftCode, nil
}

// CodeIsValid reports whether the code exists and has not been used
func (r *GiftCodeRepository) CodeIsValid(ctx context.Context, code string) (bool, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM gift_codes
		WHERE code = ? AND used_at IS NULL
	`)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, code); err != nil {
		return false, fmt.Errorf("failed to check gift code: %w", err)
	}

	return count > 0, nil
}

// MarkCodeAsUsed stamps used_at on the matching record.
// A missing code is not an error.
func (r *GiftCodeRepository) MarkCodeAsUsed(ctx context.Context, code string) error {
	query := r.db.Rebind(`
		UPDATE gift_codes
		SET used_at = ?
		WHERE code = ?
	`)

	if _, err := r.db.ExecContext(ctx, query, r.now(), code); err != nil {
		return fmt.Errorf("failed to mark gift code as used: %w", err)
	}

	return nil
}

// RedeemCode marks the code used only if it is currently unused and reports
// whether this call performed the transition.
func (r *GiftCodeRepository) RedeemCode(ctx context.Context, code string) (bool, error) {
	query := r.db.Rebind(`
		UPDATE gift_codes
		SET used_at = ?
		WHERE code = ? AND used_at IS NULL
	`)

	result, err := r.db.ExecContext(ctx, query, r.now(), code)
	if err != nil {
		return false, fmt.Errorf("failed to redeem gift code: %w", err)
	}

	// Check if any row was actually updated
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ReleaseCode returns a redeemed code to the unused state
func (r *GiftCodeRepository) ReleaseCode(ctx context.Context, code string) error {
	query := r.db.Rebind(`
		UPDATE gift_codes
		SET used_at = NULL
		WHERE code = ? AND used_at IS NOT NULL
	`)

	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("failed to release gift code: %w", err)
	}

	return nil
}

// GetGiftCodesByUser returns every code issued for user, in no particular order
func (r *GiftCodeRepository) GetGiftCodesByUser(ctx context.Context, user string) ([]model.GiftCode, error) {
	query := r.db.Rebind(`
		SELECT code, created_at, used_at, created_for
		FROM gift_codes
		WHERE created_for = ?
	`)

	giftCodes := []model.GiftCode{}
	if err := r.db.SelectContext(ctx, &giftCodes, query, user); err != nil {
		return nil, fmt.Errorf("failed to get gift codes: %w", err)
	}

	return giftCodes, nil
}

// GetGiftCodeCountByUser returns how many codes were issued for user
func (r *GiftCodeRepository) GetGiftCodeCountByUser(ctx context.Context, user string) (int64, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM gift_codes
		WHERE created_for = ?
	`)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, user); err != nil {
		return 0, fmt.Errorf("failed to count gift codes: %w", err)
	}

	return count, nil
}

// TopUpCodes mints codes from newCode for user until they hold allowance codes,
// used or not, and reports how many were minted. The count and the inserts
// share one transaction holding a per-user lock, so concurrent calls for the
// same user cannot mint past the allowance.
func (r *GiftCodeRepository) TopUpCodes(ctx context.Context, user string, allowance int64, newCode func() string) (int, error) {
	db, ok := r.db.(txBeginner)
	if !ok {
		return 0, errors.New("gift code top up needs a transactional store")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// sqlite runs on a single connection, which already serializes transactions
	if db.DriverName() == "postgres" {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, user); err != nil {
			return 0, fmt.Errorf("failed to lock gift codes of %s: %w", user, err)
		}
	}

	txRepo := &GiftCodeRepository{db: tx, now: r.now}
	existing, err := txRepo.GetGiftCodeCountByUser(ctx, user)
	if err != nil {
		return 0, err
	}

	minted := 0
	for i := existing; i < allowance; i++ {
		var addErr error
		for attempt := 0; attempt < topUpAttempts; attempt++ {
			if _, addErr = txRepo.AddCode(ctx, newCode(), user); !errors.Is(addErr, ErrDuplicateCode) {
				break
			}
		}
		if addErr != nil {
			return 0, addErr
		}
		minted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit gift codes: %w", err)
	}
	return minted, nil
}

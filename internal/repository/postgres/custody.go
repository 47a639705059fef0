package postgres

import (
	"context"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CustodyRepository keeps the pool's cash position. Every balance adjustment
// and its journal row commit in the same transaction.
type CustodyRepository struct {
	db *sqlx.DB
}

func NewCustodyRepository(db *sqlx.DB) *CustodyRepository {
	return &CustodyRepository{db: db}
}

func (r *CustodyRepository) Vault(ctx context.Context) (*domain.Vault, error) {
	vault := &domain.Vault{}
	query := `SELECT liquid, deployed, fees_paid, updated_at FROM fund_schema.custody_vault WHERE id = 1`
	if err := r.db.GetContext(ctx, vault, query); err != nil {
		return nil, errors.Wrap(err, "failed to read vault")
	}
	return vault, nil
}

// Credit adds liquid funds, recording the movement under ref.
func (r *CustodyRepository) Credit(ctx context.Context, amount decimal.Decimal, ref string) error {
	return r.move(ctx, "in", amount, ref, `
		UPDATE fund_schema.custody_vault SET
			liquid = liquid + $1,
			updated_at = NOW()
		WHERE id = 1
	`)
}

// Debit removes liquid funds. Fails with ErrInsufficientBalance when the
// vault cannot cover the amount.
func (r *CustodyRepository) Debit(ctx context.Context, amount decimal.Decimal, ref string) error {
	return r.move(ctx, "out", amount, ref, `
		UPDATE fund_schema.custody_vault SET
			liquid = liquid - $1,
			updated_at = NOW()
		WHERE id = 1 AND liquid >= $1
	`)
}

// Deploy moves liquid funds into the deployed bucket for a round.
func (r *CustodyRepository) Deploy(ctx context.Context, amount decimal.Decimal, ref string) error {
	return r.move(ctx, "deploy", amount, ref, `
		UPDATE fund_schema.custody_vault SET
			liquid = liquid - $1,
			deployed = deployed + $1,
			updated_at = NOW()
		WHERE id = 1 AND liquid >= $1
	`)
}

// Collect books a round's return: the deployed principal comes off and the
// proceeds land in the liquid bucket.
func (r *CustodyRepository) Collect(ctx context.Context, principal, proceeds decimal.Decimal, ref string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE fund_schema.custody_vault SET
			deployed = deployed - $1,
			liquid = liquid + $2,
			updated_at = NOW()
		WHERE id = 1 AND deployed >= $1
	`, principal, proceeds)
	if err != nil {
		return errors.Wrap(err, "failed to collect into vault")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrInsufficientBalance
	}

	if err := insertMovement(ctx, tx, "collect", proceeds, ref); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit vault movement")
}

// PayFee sends liquid funds out as a round fee.
func (r *CustodyRepository) PayFee(ctx context.Context, amount decimal.Decimal, ref string) error {
	return r.move(ctx, "fee", amount, ref, `
		UPDATE fund_schema.custody_vault SET
			liquid = liquid - $1,
			fees_paid = fees_paid + $1,
			updated_at = NOW()
		WHERE id = 1 AND liquid >= $1
	`)
}

func (r *CustodyRepository) Movements(ctx context.Context, limit, offset int) ([]domain.VaultMovement, error) {
	var movements []domain.VaultMovement
	query := `SELECT * FROM fund_schema.vault_movements ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &movements, query, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list vault movements")
	}
	return movements, nil
}

func (r *CustodyRepository) move(ctx context.Context, direction string, amount decimal.Decimal, ref, query string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, amount)
	if err != nil {
		return errors.Wrap(err, "failed to adjust vault")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrInsufficientBalance
	}

	if err := insertMovement(ctx, tx, direction, amount, ref); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit vault movement")
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, direction string, amount decimal.Decimal, ref string) error {
	movement := &domain.VaultMovement{
		ID:        uuid.New(),
		Direction: direction,
		Amount:    amount,
		Reference: ref,
		CreatedAt: time.Now().UTC(),
	}
	query := `
		INSERT INTO fund_schema.vault_movements (id, direction, amount, reference, created_at)
		VALUES (:id, :direction, :amount, :reference, :created_at)
	`
	_, err := tx.NamedExecContext(ctx, query, movement)
	return errors.Wrap(err, "failed to journal vault movement")
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AuthorityRepository persists role assignments and operator credentials.
type AuthorityRepository struct {
	db *sqlx.DB
}

func NewAuthorityRepository(db *sqlx.DB) *AuthorityRepository {
	return &AuthorityRepository{db: db}
}

func (r *AuthorityRepository) GetAuthority(ctx context.Context) (*domain.Authority, error) {
	authority := &domain.Authority{}
	query := `
		SELECT owner_id, pending_owner_id, manager_id, fee_recipient_id, updated_at
		FROM fund_schema.authority WHERE id = 1
	`
	err := r.db.GetContext(ctx, authority, query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOperatorNotFound
		}
		return nil, errors.Wrap(err, "failed to read authority")
	}
	return authority, nil
}

func (r *AuthorityRepository) SaveAuthority(ctx context.Context, a *domain.Authority) error {
	query := `
		INSERT INTO fund_schema.authority (
			id, owner_id, pending_owner_id, manager_id, fee_recipient_id, updated_at
		) VALUES (
			1, :owner_id, :pending_owner_id, :manager_id, :fee_recipient_id, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			pending_owner_id = EXCLUDED.pending_owner_id,
			manager_id = EXCLUDED.manager_id,
			fee_recipient_id = EXCLUDED.fee_recipient_id,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.NamedExecContext(ctx, query, a)
	return errors.Wrap(err, "failed to save authority")
}

func (r *AuthorityRepository) CreateOperator(ctx context.Context, op *domain.Operator) error {
	query := `
		INSERT INTO fund_schema.operators (
			id, name, role, secret_hash, is_active, created_at
		) VALUES (
			:id, :name, :role, :secret_hash, :is_active, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, op)
	return errors.Wrap(err, "failed to create operator")
}

func (r *AuthorityRepository) FindOperatorByName(ctx context.Context, name string) (*domain.Operator, error) {
	op := &domain.Operator{}
	query := `SELECT * FROM fund_schema.operators WHERE name = $1`
	err := r.db.GetContext(ctx, op, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOperatorNotFound
		}
		return nil, errors.Wrap(err, "failed to find operator by name")
	}
	return op, nil
}

func (r *AuthorityRepository) FindOperatorByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	op := &domain.Operator{}
	query := `SELECT * FROM fund_schema.operators WHERE id = $1`
	err := r.db.GetContext(ctx, op, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOperatorNotFound
		}
		return nil, errors.Wrap(err, "failed to find operator by id")
	}
	return op, nil
}

func (r *AuthorityRepository) TouchOperator(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE fund_schema.operators SET last_used_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return errors.Wrap(err, "failed to touch operator")
}

func (r *AuthorityRepository) CountOperators(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM fund_schema.operators`
	err := r.db.GetContext(ctx, &count, query)
	return count, errors.Wrap(err, "failed to count operators")
}

package postgres

import (
	"context"
	"database/sql"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FundStore persists the pool ledger. Apply writes one operation's changeset
// in a single transaction so the in-memory ledger and the database cannot
// diverge halfway through an operation.
type FundStore struct {
	db *sqlx.DB
}

func NewFundStore(db *sqlx.DB) *FundStore {
	return &FundStore{db: db}
}

// Load reads the persisted ledger back. A nil snapshot means the pool has
// never been written and the caller starts from scratch.
func (r *FundStore) Load(ctx context.Context) (*domain.FundSnapshot, error) {
	var pool domain.PoolState
	query := `
		SELECT capacity, total_staked, total_pending_withdraw, opened_rounds, closed_rounds, event_seq, updated_at
		FROM fund_schema.pool_state WHERE id = 1
	`
	err := r.db.GetContext(ctx, &pool, query)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load pool state")
	}

	var rounds []domain.Round
	if err := r.db.SelectContext(ctx, &rounds, `SELECT * FROM fund_schema.rounds ORDER BY round_index ASC`); err != nil {
		return nil, errors.Wrap(err, "failed to load rounds")
	}

	var accounts []domain.Account
	if err := r.db.SelectContext(ctx, &accounts, `SELECT * FROM fund_schema.accounts`); err != nil {
		return nil, errors.Wrap(err, "failed to load accounts")
	}

	type stakeRow struct {
		UserID uuid.UUID `db:"user_id"`
		domain.StakePoint
	}
	var points []stakeRow
	if err := r.db.SelectContext(ctx, &points, `SELECT user_id, from_round, stake FROM fund_schema.stake_points ORDER BY user_id, from_round ASC`); err != nil {
		return nil, errors.Wrap(err, "failed to load stake points")
	}

	byUser := make(map[uuid.UUID][]domain.StakePoint, len(accounts))
	for _, p := range points {
		byUser[p.UserID] = append(byUser[p.UserID], p.StakePoint)
	}
	for i := range accounts {
		accounts[i].Stakes = byUser[accounts[i].UserID]
	}

	return &domain.FundSnapshot{
		Pool:     pool,
		Rounds:   rounds,
		Accounts: accounts,
	}, nil
}

// Apply persists a staged changeset atomically.
func (r *FundStore) Apply(ctx context.Context, cs *domain.Changeset) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := upsertPool(ctx, tx, cs.Pool); err != nil {
		return err
	}
	if cs.Round != nil {
		if err := upsertRound(ctx, tx, cs.Round); err != nil {
			return err
		}
	}
	if cs.Account != nil {
		if err := upsertAccount(ctx, tx, cs.Account); err != nil {
			return err
		}
	}
	for i := range cs.Events {
		if err := insertEvent(ctx, tx, &cs.Events[i]); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit changeset")
}

// ListEvents pages through the journal in sequence order. afterSeq 0 starts
// from the beginning.
func (r *FundStore) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []domain.Event
	query := `
		SELECT id, seq, event_type, payload, occurred_at
		FROM fund_schema.events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &events, query, afterSeq, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return events, nil
}

func upsertPool(ctx context.Context, tx *sqlx.Tx, pool domain.PoolState) error {
	query := `
		INSERT INTO fund_schema.pool_state (
			id, capacity, total_staked, total_pending_withdraw, opened_rounds, closed_rounds, event_seq, updated_at
		) VALUES (
			1, :capacity, :total_staked, :total_pending_withdraw, :opened_rounds, :closed_rounds, :event_seq, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			capacity = EXCLUDED.capacity,
			total_staked = EXCLUDED.total_staked,
			total_pending_withdraw = EXCLUDED.total_pending_withdraw,
			opened_rounds = EXCLUDED.opened_rounds,
			closed_rounds = EXCLUDED.closed_rounds,
			event_seq = EXCLUDED.event_seq,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.NamedExecContext(ctx, query, pool)
	return errors.Wrap(err, "failed to upsert pool state")
}

func upsertRound(ctx context.Context, tx *sqlx.Tx, round *domain.Round) error {
	query := `
		INSERT INTO fund_schema.rounds (
			round_index, total_participating, invested_amount, realized_reward, gross_proceeds,
			fee_paid, receipt_id, status, opened_at, matures_at, closed_at
		) VALUES (
			:round_index, :total_participating, :invested_amount, :realized_reward, :gross_proceeds,
			:fee_paid, :receipt_id, :status, :opened_at, :matures_at, :closed_at
		)
		ON CONFLICT (round_index) DO UPDATE SET
			realized_reward = EXCLUDED.realized_reward,
			gross_proceeds = EXCLUDED.gross_proceeds,
			fee_paid = EXCLUDED.fee_paid,
			status = EXCLUDED.status,
			closed_at = EXCLUDED.closed_at
	`
	_, err := tx.NamedExecContext(ctx, query, round)
	return errors.Wrap(err, "failed to upsert round")
}

func upsertAccount(ctx context.Context, tx *sqlx.Tx, account *domain.Account) error {
	query := `
		INSERT INTO fund_schema.accounts (
			user_id, deposit_amount, accrued_reward, pending_reward, withdraw_amount,
			last_settled_round, state, created_at, updated_at
		) VALUES (
			:user_id, :deposit_amount, :accrued_reward, :pending_reward, :withdraw_amount,
			:last_settled_round, :state, :created_at, :updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			deposit_amount = EXCLUDED.deposit_amount,
			accrued_reward = EXCLUDED.accrued_reward,
			pending_reward = EXCLUDED.pending_reward,
			withdraw_amount = EXCLUDED.withdraw_amount,
			last_settled_round = EXCLUDED.last_settled_round,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.NamedExecContext(ctx, query, account); err != nil {
		return errors.Wrap(err, "failed to upsert account")
	}

	// Stake points are pruned in memory, so the persisted set is replaced
	// wholesale rather than diffed.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fund_schema.stake_points WHERE user_id = $1`, account.UserID); err != nil {
		return errors.Wrap(err, "failed to clear stake points")
	}
	for _, p := range account.Stakes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fund_schema.stake_points (user_id, from_round, stake) VALUES ($1, $2, $3)`,
			account.UserID, p.FromRound, p.Stake,
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert stake point")
		}
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, event *domain.Event) error {
	query := `
		INSERT INTO fund_schema.events (id, seq, event_type, payload, occurred_at)
		VALUES (:id, :seq, :event_type, :payload, :occurred_at)
	`
	_, err := tx.NamedExecContext(ctx, query, event)
	return errors.Wrap(err, "failed to insert event")
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountState tracks the withdrawal state machine of a pool account.
type AccountState string

const (
	AccountStateIdle      AccountState = "idle"
	AccountStateRequested AccountState = "requested"
)

// RoundStatus represents the lifecycle of an investment round.
type RoundStatus string

const (
	RoundStatusOpen   RoundStatus = "open"
	RoundStatusClosed RoundStatus = "closed"
)

// Account is a user's position in the pool. Amounts are integral base units of
// the settlement asset carried in decimal.Decimal.
type Account struct {
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	DepositAmount    decimal.Decimal `json:"deposit_amount" db:"deposit_amount"`
	AccruedReward    decimal.Decimal `json:"accrued_reward" db:"accrued_reward"`
	PendingReward    decimal.Decimal `json:"pending_reward" db:"pending_reward"`
	WithdrawAmount   decimal.Decimal `json:"withdraw_amount" db:"withdraw_amount"`
	LastSettledRound int64           `json:"last_settled_round" db:"last_settled_round"`
	State            AccountState    `json:"state" db:"state"`
	Stakes           []StakePoint    `json:"stakes" db:"-"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// StakePoint records the account's participating stake effective from FromRound
// onward. Points are sparse and forward-filled: a round with no explicit point
// uses the nearest earlier one.
type StakePoint struct {
	FromRound int64           `json:"from_round" db:"from_round"`
	Stake     decimal.Decimal `json:"stake" db:"stake"`
}

// Round is one investment cycle. TotalParticipating, InvestedAmount and the
// close-time fields are write-once.
type Round struct {
	Index              int64           `json:"index" db:"round_index"`
	TotalParticipating decimal.Decimal `json:"total_participating" db:"total_participating"`
	InvestedAmount     decimal.Decimal `json:"invested_amount" db:"invested_amount"`
	RealizedReward     decimal.Decimal `json:"realized_reward" db:"realized_reward"`
	GrossProceeds      decimal.Decimal `json:"gross_proceeds" db:"gross_proceeds"`
	FeePaid            decimal.Decimal `json:"fee_paid" db:"fee_paid"`
	ReceiptID          uuid.UUID       `json:"receipt_id" db:"receipt_id"`
	Status             RoundStatus     `json:"status" db:"status"`
	OpenedAt           time.Time       `json:"opened_at" db:"opened_at"`
	MaturesAt          time.Time       `json:"matures_at" db:"matures_at"`
	ClosedAt           *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
}

// PoolState is the pool-level ledger header. TotalStaked is the sum of every
// account's current stake; opening a round freezes it as that round's
// TotalParticipating.
type PoolState struct {
	Capacity             decimal.Decimal `json:"capacity" db:"capacity"`
	TotalStaked          decimal.Decimal `json:"total_staked" db:"total_staked"`
	TotalPendingWithdraw decimal.Decimal `json:"total_pending_withdraw" db:"total_pending_withdraw"`
	OpenedRounds         int64           `json:"opened_rounds" db:"opened_rounds"`
	ClosedRounds         int64           `json:"closed_rounds" db:"closed_rounds"`
	EventSeq             int64           `json:"event_seq" db:"event_seq"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// EventType enumerates the append-only journal events.
type EventType string

const (
	EventDepositMade         EventType = "deposit_made"
	EventWithdrawRequested   EventType = "withdraw_requested"
	EventWithdrawCancelled   EventType = "withdraw_cancelled"
	EventWithdrawCompleted   EventType = "withdraw_completed"
	EventRoundOpened         EventType = "round_opened"
	EventProceedsSwapped     EventType = "proceeds_swapped"
	EventRoundClosed         EventType = "round_closed"
	EventRewardSettled       EventType = "reward_settled"
	EventCapacityChanged     EventType = "capacity_changed"
	EventManagerChanged      EventType = "manager_changed"
	EventFeeRecipientChanged EventType = "fee_recipient_changed"
	EventOwnerProposed       EventType = "owner_proposed"
	EventOwnerAccepted       EventType = "owner_accepted"
)

// Event is one entry of the append-only journal. Payload carries every field
// needed to rebuild the ledger from the log alone.
type Event struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Seq        int64     `json:"seq" db:"seq"`
	Type       EventType `json:"type" db:"event_type"`
	Payload    Metadata  `json:"payload" db:"payload"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// Changeset is the staged outcome of one fund operation. The store applies it
// in a single transaction; the in-memory ledger swaps it in only afterwards.
type Changeset struct {
	Account *Account
	Round   *Round
	Pool    PoolState
	Events  []Event
}

// FundSnapshot is the persisted ledger read back at startup.
type FundSnapshot struct {
	Pool     PoolState
	Rounds   []Round
	Accounts []Account
}

// Vault is the custodial cash position of the pool.
type Vault struct {
	Liquid    decimal.Decimal `json:"liquid" db:"liquid"`
	Deployed  decimal.Decimal `json:"deployed" db:"deployed"`
	FeesPaid  decimal.Decimal `json:"fees_paid" db:"fees_paid"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// VaultMovement is one journaled cash movement.
type VaultMovement struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Direction string          `json:"direction" db:"direction"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Reference string          `json:"reference" db:"reference"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Authority holds the privileged role assignments, including the pending owner
// of a two-phase ownership transfer.
type Authority struct {
	Owner        uuid.UUID  `json:"owner" db:"owner_id"`
	PendingOwner *uuid.UUID `json:"pending_owner,omitempty" db:"pending_owner_id"`
	Manager      uuid.UUID  `json:"manager" db:"manager_id"`
	FeeRecipient uuid.UUID  `json:"fee_recipient" db:"fee_recipient_id"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// OperatorRole distinguishes service operators on the admin surface.
type OperatorRole string

const (
	OperatorRoleOwner   OperatorRole = "owner"
	OperatorRoleManager OperatorRole = "manager"
)

// Operator is a service principal allowed to call privileged endpoints.
type Operator struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	Role       OperatorRole `json:"role" db:"role"`
	SecretHash string       `json:"-" db:"secret_hash"`
	IsActive   bool         `json:"is_active" db:"is_active"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty" db:"last_used_at"`
}

// InvestmentProceeds is what the lending protocol returns when a matured
// receipt is collected. AltAmount, when positive, is denominated in AltAsset
// and has to be swapped into the settlement asset before settlement.
type InvestmentProceeds struct {
	SettlementAmount decimal.Decimal `json:"settlement_amount"`
	AltAmount        decimal.Decimal `json:"alt_amount"`
	AltAsset         string          `json:"alt_asset,omitempty"`
}

// Metadata is a JSONB column helper.
type Metadata map[string]interface{}

// Value implements driver.Valuer for Metadata.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}

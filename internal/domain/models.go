// Package domain re-exports core domain types so internal code can import
// `stokvel/internal/domain` while using definitions from `stokvel/pkg/domain`.
package domain

import pkg "stokvel/pkg/domain"

// Account represents a user's position in the pool.
type Account = pkg.Account

// AccountState represents the withdrawal state machine of an account.
type AccountState = pkg.AccountState

// StakePoint represents a round-indexed participation stake.
type StakePoint = pkg.StakePoint

// Round represents one investment cycle.
type Round = pkg.Round

// RoundStatus represents round lifecycle states.
type RoundStatus = pkg.RoundStatus

// PoolState represents the pool-level ledger header.
type PoolState = pkg.PoolState

// Event represents one entry of the append-only journal.
type Event = pkg.Event

// EventType identifies journal event kinds.
type EventType = pkg.EventType

// Changeset represents the staged outcome of one fund operation.
type Changeset = pkg.Changeset

// FundSnapshot represents the persisted ledger read back at startup.
type FundSnapshot = pkg.FundSnapshot

// Vault represents the custodial cash position of the pool.
type Vault = pkg.Vault

// VaultMovement represents one journaled cash movement.
type VaultMovement = pkg.VaultMovement

// Authority represents the privileged role assignments.
type Authority = pkg.Authority

// Operator represents a privileged service principal.
type Operator = pkg.Operator

// OperatorRole distinguishes operator roles.
type OperatorRole = pkg.OperatorRole

// InvestmentProceeds represents collected proceeds from the lending protocol.
type InvestmentProceeds = pkg.InvestmentProceeds

// Metadata holds arbitrary key-value metadata.
type Metadata = pkg.Metadata

// Re-exported account states.
const (
	AccountStateIdle      = pkg.AccountStateIdle
	AccountStateRequested = pkg.AccountStateRequested
)

// Re-exported round statuses.
const (
	RoundStatusOpen   = pkg.RoundStatusOpen
	RoundStatusClosed = pkg.RoundStatusClosed
)

// Re-exported event types.
const (
	EventDepositMade         = pkg.EventDepositMade
	EventWithdrawRequested   = pkg.EventWithdrawRequested
	EventWithdrawCancelled   = pkg.EventWithdrawCancelled
	EventWithdrawCompleted   = pkg.EventWithdrawCompleted
	EventRoundOpened         = pkg.EventRoundOpened
	EventProceedsSwapped     = pkg.EventProceedsSwapped
	EventRoundClosed         = pkg.EventRoundClosed
	EventRewardSettled       = pkg.EventRewardSettled
	EventCapacityChanged     = pkg.EventCapacityChanged
	EventManagerChanged      = pkg.EventManagerChanged
	EventFeeRecipientChanged = pkg.EventFeeRecipientChanged
	EventOwnerProposed       = pkg.EventOwnerProposed
	EventOwnerAccepted       = pkg.EventOwnerAccepted
)

// Re-exported operator roles.
const (
	OperatorRoleOwner   = pkg.OperatorRoleOwner
	OperatorRoleManager = pkg.OperatorRoleManager
)

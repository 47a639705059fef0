// ==============================================================================
// FUND SERVICE - internal/fund/service.go
// ==============================================================================
package fund

import (
	"context"
	"sync"
	"time"

	"stokvel/internal/domain"
	"stokvel/internal/metrics"
	"stokvel/pkg/errors"
	"stokvel/pkg/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Service serializes every ledger operation behind one mutex (single-writer).
// Each operation validates and stages on copies, runs the external collaborator
// calls, persists the staged changeset in one store transaction, and only then
// commits to live state. A failure at any step leaves live state untouched.
type Service struct {
	mu        sync.Mutex
	ledger    *Ledger
	store     Store
	custody   CustodyVault
	lending   LendingProtocol
	exchange  ExchangeVenue
	access    AccessRegistry
	publisher EventPublisher
	roundFee  decimal.Decimal
	clock     clockwork.Clock
	logger    logger.Logger
}

// NewService constructs the fund service. publisher may be nil.
func NewService(
	ledger *Ledger,
	store Store,
	custody CustodyVault,
	lending LendingProtocol,
	exchange ExchangeVenue,
	access AccessRegistry,
	publisher EventPublisher,
	roundFee decimal.Decimal,
	clock clockwork.Clock,
	log logger.Logger,
) *Service {
	return &Service{
		ledger:    ledger,
		store:     store,
		custody:   custody,
		lending:   lending,
		exchange:  exchange,
		access:    access,
		publisher: publisher,
		roundFee:  roundFee,
		clock:     clock,
		logger:    log,
	}
}

// Deposit adds funds to the user's position. The capital participates from the
// next opened round.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.ledger.StageDeposit(userID, amount, s.clock.Now())
	if err != nil {
		return nil, err
	}

	start := s.clock.Now()
	err = s.custody.TransferIn(ctx, userID, amount)
	s.observeCall("custody", "transfer_in", start, err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to transfer deposit into custody")
	}

	if err := s.commit(ctx, cs); err != nil {
		s.logger.Error("custody credited but ledger write failed, reconcile deposit", map[string]interface{}{
			"user_id": userID.String(),
			"amount":  amount.String(),
			"error":   err.Error(),
		})
		return nil, err
	}

	metrics.DepositsTotal.Inc()
	s.logger.Info("deposit accepted", map[string]interface{}{
		"user_id":      userID.String(),
		"amount":       amount.String(),
		"total_staked": cs.Pool.TotalStaked.String(),
	})
	acct := *cs.Account
	return &acct, nil
}

// RequestWithdraw settles the account and locks amount for withdrawal, reward
// portion first. It fails unless custody's liquid balance can honor every
// pending request including this one.
func (s *Service) RequestWithdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	liquid, err := s.custody.LiquidBalance(ctx)
	s.observeCall("custody", "liquid_balance", start, err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody balance")
	}

	cs, err := s.ledger.StageRequestWithdraw(userID, amount, liquid, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, cs); err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("requested").Inc()
	s.logger.Info("withdrawal requested", map[string]interface{}{
		"user_id": userID.String(),
		"amount":  amount.String(),
	})
	acct := *cs.Account
	return &acct, nil
}

// CancelWithdraw returns part or all of a pending request to the account.
func (s *Service) CancelWithdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.ledger.StageCancelWithdraw(userID, amount, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, cs); err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("withdrawal cancelled", map[string]interface{}{
		"user_id":   userID.String(),
		"amount":    amount.String(),
		"remaining": cs.Account.WithdrawAmount.String(),
	})
	acct := *cs.Account
	return &acct, nil
}

// CompleteWithdraw pays out the pending request. Balances are zeroed in the
// staged state before the custody transfer is issued; the service mutex
// serializes any re-entrant call.
func (s *Service) CompleteWithdraw(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, amount, err := s.ledger.StageCompleteWithdraw(userID, s.clock.Now())
	if err != nil {
		return decimal.Zero, err
	}

	start := s.clock.Now()
	err = s.custody.TransferOut(ctx, userID, amount)
	s.observeCall("custody", "transfer_out", start, err)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to transfer withdrawal from custody")
	}

	if err := s.commit(ctx, cs); err != nil {
		s.logger.Error("custody debited but ledger write failed, reconcile withdrawal", map[string]interface{}{
			"user_id": userID.String(),
			"amount":  amount.String(),
			"error":   err.Error(),
		})
		return decimal.Zero, err
	}

	metrics.WithdrawalsTotal.WithLabelValues("completed").Inc()
	s.logger.Info("withdrawal completed", map[string]interface{}{
		"user_id": userID.String(),
		"amount":  amount.String(),
	})
	return amount, nil
}

// SettleRewards runs settlement for one account. Settlement is idempotent: a
// second call settles nothing further.
func (s *Service) SettleRewards(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, settled, err := s.ledger.StageSettle(userID, s.clock.Now())
	if err != nil {
		return decimal.Zero, err
	}
	if cs == nil {
		return decimal.Zero, nil
	}

	if err := s.commit(ctx, cs); err != nil {
		return decimal.Zero, err
	}

	if settled.IsPositive() {
		metrics.SettlementsTotal.Inc()
		metrics.SettledRewardTotal.Add(toFloat(settled))
		s.logger.Info("rewards settled", map[string]interface{}{
			"user_id": userID.String(),
			"amount":  settled.String(),
		})
	}
	return settled, nil
}

// OpenRound freezes the current participation base, deploys investAmount to
// the lending protocol, and records the new round. Manager only.
func (s *Service) OpenRound(ctx context.Context, callerID uuid.UUID, investAmount decimal.Decimal, maturesAt time.Time) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access.IsManager(ctx, callerID) {
		return nil, errors.ErrUnauthorized
	}

	start := s.clock.Now()
	liquid, err := s.custody.LiquidBalance(ctx)
	s.observeCall("custody", "liquid_balance", start, err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody balance")
	}

	now := s.clock.Now()
	if err := s.ledger.ValidateOpenRound(investAmount, maturesAt, now, liquid); err != nil {
		return nil, err
	}
	index := s.ledger.Pool().OpenedRounds + 1

	start = s.clock.Now()
	receiptID, err := s.lending.Invest(ctx, investAmount, maturesAt)
	s.observeCall("lending", "invest", start, err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to invest with lending protocol")
	}

	start = s.clock.Now()
	err = s.custody.Deploy(ctx, index, investAmount)
	s.observeCall("custody", "deploy", start, err)
	if err != nil {
		s.logger.Error("invested but custody deploy failed, reconcile round", map[string]interface{}{
			"round":      index,
			"receipt_id": receiptID.String(),
			"amount":     investAmount.String(),
			"error":      err.Error(),
		})
		return nil, errors.Wrap(err, "failed to deploy custody funds")
	}

	cs := s.ledger.BuildOpenRound(receiptID, investAmount, maturesAt, now)
	if err := s.commit(ctx, cs); err != nil {
		s.logger.Error("funds deployed but ledger write failed, reconcile round", map[string]interface{}{
			"round":      index,
			"receipt_id": receiptID.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	metrics.RoundsTotal.WithLabelValues("opened").Inc()
	s.logger.Info("round opened", map[string]interface{}{
		"round":               cs.Round.Index,
		"invested_amount":     investAmount.String(),
		"total_participating": cs.Round.TotalParticipating.String(),
		"matures_at":          maturesAt.UTC().Format(time.RFC3339),
	})
	round := *cs.Round
	return &round, nil
}

// CloseRound collects the next unclosed round's proceeds, swaps any
// non-settlement portion, deducts the round fee, and realizes the reward.
// Manager only; closes happen strictly in open order.
func (s *Service) CloseRound(ctx context.Context, callerID uuid.UUID, minSwapOut decimal.Decimal) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access.IsManager(ctx, callerID) {
		return nil, errors.ErrUnauthorized
	}

	now := s.clock.Now()
	round, err := s.ledger.NextCloseableRound(now)
	if err != nil {
		return nil, err
	}

	start := s.clock.Now()
	proceeds, err := s.lending.Collect(ctx, round.ReceiptID)
	s.observeCall("lending", "collect", start, err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect from lending protocol")
	}

	total := proceeds.SettlementAmount
	var swap *SwapDetail
	if proceeds.AltAmount.IsPositive() {
		start = s.clock.Now()
		out, swapErr := s.exchange.Swap(ctx, proceeds.AltAsset, proceeds.AltAmount, minSwapOut)
		s.observeCall("exchange", "swap", start, swapErr)
		if swapErr != nil {
			return nil, errors.Wrap(swapErr, "failed to swap proceeds")
		}
		swap = &SwapDetail{AssetIn: proceeds.AltAsset, AmountIn: proceeds.AltAmount, AmountOut: out}
		total = total.Add(out)
	}

	cs, feePaid, reward := s.ledger.BuildCloseRound(round, total, swap, s.roundFee, now)

	start = s.clock.Now()
	err = s.custody.Collect(ctx, round.Index, round.InvestedAmount, total)
	s.observeCall("custody", "collect", start, err)
	if err != nil {
		s.logger.Error("proceeds collected but custody credit failed, reconcile round", map[string]interface{}{
			"round":    round.Index,
			"proceeds": total.String(),
			"error":    err.Error(),
		})
		return nil, errors.Wrap(err, "failed to credit custody with proceeds")
	}

	if feePaid.IsPositive() {
		recipient, feeErr := s.access.FeeRecipient(ctx)
		if feeErr != nil {
			return nil, errors.Wrap(feeErr, "failed to resolve fee recipient")
		}
		start = s.clock.Now()
		feeErr = s.custody.PayFee(ctx, recipient, feePaid)
		s.observeCall("custody", "pay_fee", start, feeErr)
		if feeErr != nil {
			s.logger.Error("proceeds credited but fee transfer failed, reconcile round", map[string]interface{}{
				"round": round.Index,
				"fee":   feePaid.String(),
				"error": feeErr.Error(),
			})
			return nil, errors.Wrap(feeErr, "failed to transfer round fee")
		}
	}

	if err := s.commit(ctx, cs); err != nil {
		s.logger.Error("custody settled but ledger write failed, reconcile round", map[string]interface{}{
			"round": round.Index,
			"error": err.Error(),
		})
		return nil, err
	}

	metrics.RoundsTotal.WithLabelValues("closed").Inc()
	s.logger.Info("round closed", map[string]interface{}{
		"round":           cs.Round.Index,
		"gross_proceeds":  total.String(),
		"fee_paid":        feePaid.String(),
		"realized_reward": reward.String(),
	})
	closed := *cs.Round
	return &closed, nil
}

// SetCapacity changes the deposit capacity. Owner only.
func (s *Service) SetCapacity(ctx context.Context, callerID uuid.UUID, capacity decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access.IsOwner(ctx, callerID) {
		return errors.ErrUnauthorized
	}

	cs, err := s.ledger.StageSetCapacity(capacity, callerID, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.commit(ctx, cs); err != nil {
		return err
	}

	s.logger.Info("capacity changed", map[string]interface{}{
		"capacity":   capacity.String(),
		"changed_by": callerID.String(),
	})
	return nil
}

// ProposeOwner records a revocable ownership succession proposal.
func (s *Service) ProposeOwner(ctx context.Context, callerID, successor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.access.ProposeOwner(ctx, callerID, successor); err != nil {
		return err
	}
	cs := s.ledger.StageAdminEvent(domain.EventOwnerProposed, ownerProposedPayload(callerID, successor), s.clock.Now())
	return s.commit(ctx, cs)
}

// AcceptOwner completes the two-phase ownership transfer. Only the proposed
// successor may accept.
func (s *Service) AcceptOwner(ctx context.Context, callerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.access.AcceptOwner(ctx, callerID)
	if err != nil {
		return err
	}
	cs := s.ledger.StageAdminEvent(domain.EventOwnerAccepted, ownerAcceptedPayload(previous, callerID), s.clock.Now())
	return s.commit(ctx, cs)
}

// SetManager assigns the round manager role. Owner only.
func (s *Service) SetManager(ctx context.Context, callerID, manager uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.access.SetManager(ctx, callerID, manager)
	if err != nil {
		return err
	}
	cs := s.ledger.StageAdminEvent(domain.EventManagerChanged, roleChangedPayload("manager", previous, manager, callerID), s.clock.Now())
	return s.commit(ctx, cs)
}

// SetFeeRecipient assigns where round fees go. Owner only.
func (s *Service) SetFeeRecipient(ctx context.Context, callerID, recipient uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.access.SetFeeRecipient(ctx, callerID, recipient)
	if err != nil {
		return err
	}
	cs := s.ledger.StageAdminEvent(domain.EventFeeRecipientChanged, roleChangedPayload("fee_recipient", previous, recipient, callerID), s.clock.Now())
	return s.commit(ctx, cs)
}

// AccountView is an account snapshot with settlement previewed through the
// latest closed round.
type AccountView struct {
	UserID           uuid.UUID           `json:"user_id"`
	DepositAmount    decimal.Decimal     `json:"deposit_amount"`
	AccruedReward    decimal.Decimal     `json:"accrued_reward"`
	PendingReward    decimal.Decimal     `json:"pending_reward"`
	WithdrawAmount   decimal.Decimal     `json:"withdraw_amount"`
	Claimable        decimal.Decimal     `json:"claimable"`
	LastSettledRound int64               `json:"last_settled_round"`
	State            domain.AccountState `json:"state"`
}

// Account returns the settlement-previewed view of one account.
func (s *Service) Account(ctx context.Context, userID uuid.UUID) (*AccountView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.ledger.AccountPreview(userID)
	if err != nil {
		return nil, err
	}
	return &AccountView{
		UserID:           a.UserID,
		DepositAmount:    a.DepositAmount,
		AccruedReward:    a.AccruedReward,
		PendingReward:    a.PendingReward,
		WithdrawAmount:   a.WithdrawAmount,
		Claimable:        a.DepositAmount.Add(a.AccruedReward),
		LastSettledRound: a.LastSettledRound,
		State:            a.State,
	}, nil
}

// PoolSummary is the pool header plus custody's liquid position.
type PoolSummary struct {
	Capacity             decimal.Decimal `json:"capacity"`
	TotalStaked          decimal.Decimal `json:"total_staked"`
	TotalPendingWithdraw decimal.Decimal `json:"total_pending_withdraw"`
	OpenedRounds         int64           `json:"opened_rounds"`
	ClosedRounds         int64           `json:"closed_rounds"`
	CustodyLiquid        decimal.Decimal `json:"custody_liquid"`
}

// Pool returns the pool summary.
func (s *Service) Pool(ctx context.Context) (*PoolSummary, error) {
	s.mu.Lock()
	pool := s.ledger.Pool()
	s.mu.Unlock()

	liquid, err := s.custody.LiquidBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody balance")
	}
	return &PoolSummary{
		Capacity:             pool.Capacity,
		TotalStaked:          pool.TotalStaked,
		TotalPendingWithdraw: pool.TotalPendingWithdraw,
		OpenedRounds:         pool.OpenedRounds,
		ClosedRounds:         pool.ClosedRounds,
		CustodyLiquid:        liquid,
	}, nil
}

// Round returns one round by index.
func (s *Service) Round(ctx context.Context, index int64) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Round(index)
}

// Rounds returns every round in ascending order.
func (s *Service) Rounds(ctx context.Context) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Rounds(), nil
}

func (s *Service) commit(ctx context.Context, cs *domain.Changeset) error {
	if err := s.store.Apply(ctx, cs); err != nil {
		return errors.Wrap(err, "failed to persist ledger changes")
	}
	s.ledger.Commit(cs)
	metrics.UpdatePoolGauges(cs.Pool)
	s.publish(cs.Events)
	return nil
}

func (s *Service) publish(events []domain.Event) {
	if s.publisher == nil {
		return
	}
	for i := range events {
		s.publisher.Publish(events[i])
	}
}

func (s *Service) observeCall(collaborator, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CollaboratorDuration.WithLabelValues(collaborator, operation, status).Observe(s.clock.Since(start).Seconds())
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Store persists staged changesets atomically and rebuilds the ledger at
// startup.
type Store interface {
	Load(ctx context.Context) (*domain.FundSnapshot, error)
	Apply(ctx context.Context, cs *domain.Changeset) error
}

// CustodyVault moves the pool's custodial cash. Implementations book every
// movement before the ledger changeset is persisted.
type CustodyVault interface {
	TransferIn(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	TransferOut(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	Deploy(ctx context.Context, roundIndex int64, amount decimal.Decimal) error
	Collect(ctx context.Context, roundIndex int64, principal, proceeds decimal.Decimal) error
	PayFee(ctx context.Context, recipient uuid.UUID, amount decimal.Decimal) error
	LiquidBalance(ctx context.Context) (decimal.Decimal, error)
}

// LendingProtocol is the external venue rounds invest into.
type LendingProtocol interface {
	Invest(ctx context.Context, amount decimal.Decimal, maturesAt time.Time) (uuid.UUID, error)
	Collect(ctx context.Context, receiptID uuid.UUID) (*domain.InvestmentProceeds, error)
}

// ExchangeVenue converts non-settlement proceeds into the settlement asset.
type ExchangeVenue interface {
	Swap(ctx context.Context, fromAsset string, amount, minOut decimal.Decimal) (decimal.Decimal, error)
}

// AccessRegistry answers and mutates the privileged role assignments.
type AccessRegistry interface {
	IsManager(ctx context.Context, id uuid.UUID) bool
	IsOwner(ctx context.Context, id uuid.UUID) bool
	FeeRecipient(ctx context.Context) (uuid.UUID, error)
	ProposeOwner(ctx context.Context, callerID, successor uuid.UUID) error
	AcceptOwner(ctx context.Context, callerID uuid.UUID) (uuid.UUID, error)
	SetManager(ctx context.Context, callerID, manager uuid.UUID) (uuid.UUID, error)
	SetFeeRecipient(ctx context.Context, callerID, recipient uuid.UUID) (uuid.UUID, error)
}

// EventPublisher fans committed events out to live subscribers.
type EventPublisher interface {
	Publish(event domain.Event)
}

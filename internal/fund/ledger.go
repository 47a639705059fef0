// Package fund implements the pooled investment ledger: round-indexed
// accounting, the per-account withdrawal state machine, and lazy pro-rata
// reward settlement.
//
// The Ledger is a pure in-memory state machine. Operations stage their outcome
// as a domain.Changeset built entirely on copies; nothing mutates live state
// until Commit. The Service (service.go) serializes operations, runs the
// external collaborator calls, persists the changeset, and only then commits.
package fund

import (
	"sort"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger holds the authoritative pool state. All amounts are integral base
// units of the settlement asset.
type Ledger struct {
	pool     domain.PoolState
	rounds   map[int64]*domain.Round
	accounts map[uuid.UUID]*domain.Account
}

// NewLedger returns an empty ledger with the given deposit capacity.
func NewLedger(capacity decimal.Decimal) *Ledger {
	return &Ledger{
		pool: domain.PoolState{
			Capacity:             capacity,
			TotalStaked:          decimal.Zero,
			TotalPendingWithdraw: decimal.Zero,
		},
		rounds:   make(map[int64]*domain.Round),
		accounts: make(map[uuid.UUID]*domain.Account),
	}
}

// Rehydrate rebuilds a ledger from a persisted snapshot.
func Rehydrate(snap *domain.FundSnapshot) *Ledger {
	l := &Ledger{
		pool:     snap.Pool,
		rounds:   make(map[int64]*domain.Round, len(snap.Rounds)),
		accounts: make(map[uuid.UUID]*domain.Account, len(snap.Accounts)),
	}
	for i := range snap.Rounds {
		r := snap.Rounds[i]
		l.rounds[r.Index] = &r
	}
	for i := range snap.Accounts {
		a := snap.Accounts[i]
		sort.Slice(a.Stakes, func(x, y int) bool { return a.Stakes[x].FromRound < a.Stakes[y].FromRound })
		l.accounts[a.UserID] = &a
	}
	return l
}

// Commit swaps a staged changeset into live state. The caller must have
// persisted it first.
func (l *Ledger) Commit(cs *domain.Changeset) {
	if cs.Account != nil {
		l.accounts[cs.Account.UserID] = cs.Account
	}
	if cs.Round != nil {
		l.rounds[cs.Round.Index] = cs.Round
	}
	l.pool = cs.Pool
}

// StageDeposit settles the account, then stages a deposit. The new capital
// participates from the next opened round; rounds already open keep their
// frozen base.
func (l *Ledger) StageDeposit(userID uuid.UUID, amount decimal.Decimal, now time.Time) (*domain.Changeset, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrZeroAmount
	}

	a := l.stagedAccount(userID, now)
	firstUnsettled := a.LastSettledRound + 1
	settled := l.settleAccount(a)

	oldStake := currentStake(a.Stakes)
	newStake := a.DepositAmount.Add(amount).Add(a.AccruedReward)

	pool := l.pool
	totalStaked := pool.TotalStaked.Add(newStake.Sub(oldStake))
	if totalStaked.GreaterThan(pool.Capacity) {
		return nil, errors.ErrCapacityExceeded
	}

	effectiveRound := pool.OpenedRounds + 1
	a.DepositAmount = a.DepositAmount.Add(amount)
	a.Stakes = setStake(a.Stakes, effectiveRound, newStake)
	a.UpdatedAt = now

	pool.TotalStaked = totalStaked
	pool.UpdatedAt = now

	cs := &domain.Changeset{Account: a, Pool: pool}
	if settled.IsPositive() {
		appendEvent(cs, domain.EventRewardSettled, now, rewardSettledPayload(a, settled, firstUnsettled))
	}
	appendEvent(cs, domain.EventDepositMade, now, depositPayload(a, amount, newStake, effectiveRound))
	return cs, nil
}

// StageRequestWithdraw settles the account, then stages a withdrawal request
// drawing from accrued reward before deposit principal. liquid is the
// custody's current liquid balance; the request fails unless it covers every
// pending withdrawal including this one.
func (l *Ledger) StageRequestWithdraw(userID uuid.UUID, amount, liquid decimal.Decimal, now time.Time) (*domain.Changeset, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrZeroAmount
	}

	a := l.stagedAccount(userID, now)
	if a.State == domain.AccountStateRequested {
		return nil, errors.ErrAlreadyRequested
	}

	firstUnsettled := a.LastSettledRound + 1
	settled := l.settleAccount(a)

	if amount.GreaterThan(a.DepositAmount.Add(a.AccruedReward)) {
		return nil, errors.ErrInsufficientBalance
	}

	pool := l.pool
	if liquid.LessThan(pool.TotalPendingWithdraw.Add(amount)) {
		return nil, errors.ErrInsufficientBalance
	}

	oldStake := currentStake(a.Stakes)
	fromReward := decimal.Min(amount, a.AccruedReward)
	fromDeposit := amount.Sub(fromReward)

	a.AccruedReward = a.AccruedReward.Sub(fromReward)
	a.PendingReward = fromReward
	a.DepositAmount = a.DepositAmount.Sub(fromDeposit)
	a.WithdrawAmount = amount
	a.State = domain.AccountStateRequested

	effectiveRound := pool.OpenedRounds + 1
	newStake := a.DepositAmount.Add(a.AccruedReward)
	a.Stakes = setStake(a.Stakes, effectiveRound, newStake)
	a.UpdatedAt = now

	pool.TotalStaked = pool.TotalStaked.Add(newStake.Sub(oldStake))
	pool.TotalPendingWithdraw = pool.TotalPendingWithdraw.Add(amount)
	pool.UpdatedAt = now

	cs := &domain.Changeset{Account: a, Pool: pool}
	if settled.IsPositive() {
		appendEvent(cs, domain.EventRewardSettled, now, rewardSettledPayload(a, settled, firstUnsettled))
	}
	appendEvent(cs, domain.EventWithdrawRequested, now, withdrawRequestedPayload(a, amount, fromReward, fromDeposit, newStake, effectiveRound))
	return cs, nil
}

// StageCancelWithdraw settles the account, then stages a full or partial
// cancellation. Restored capital re-enters participation from the next round,
// reward portion first.
func (l *Ledger) StageCancelWithdraw(userID uuid.UUID, amount decimal.Decimal, now time.Time) (*domain.Changeset, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrZeroAmount
	}

	a := l.stagedAccount(userID, now)
	if a.State != domain.AccountStateRequested {
		return nil, errors.ErrNoPendingRequest
	}
	if amount.GreaterThan(a.WithdrawAmount) {
		return nil, errors.ErrInsufficientBalance
	}

	firstUnsettled := a.LastSettledRound + 1
	settled := l.settleAccount(a)

	pool := l.pool
	oldStake := currentStake(a.Stakes)
	toReward := decimal.Min(amount, a.PendingReward)
	toDeposit := amount.Sub(toReward)

	a.PendingReward = a.PendingReward.Sub(toReward)
	a.AccruedReward = a.AccruedReward.Add(toReward)
	a.DepositAmount = a.DepositAmount.Add(toDeposit)
	a.WithdrawAmount = a.WithdrawAmount.Sub(amount)
	if a.WithdrawAmount.IsZero() {
		a.State = domain.AccountStateIdle
	}

	effectiveRound := pool.OpenedRounds + 1
	newStake := a.DepositAmount.Add(a.AccruedReward)
	a.Stakes = setStake(a.Stakes, effectiveRound, newStake)
	a.UpdatedAt = now

	pool.TotalStaked = pool.TotalStaked.Add(newStake.Sub(oldStake))
	pool.TotalPendingWithdraw = pool.TotalPendingWithdraw.Sub(amount)
	pool.UpdatedAt = now

	cs := &domain.Changeset{Account: a, Pool: pool}
	if settled.IsPositive() {
		appendEvent(cs, domain.EventRewardSettled, now, rewardSettledPayload(a, settled, firstUnsettled))
	}
	appendEvent(cs, domain.EventWithdrawCancelled, now, withdrawCancelledPayload(a, amount, toReward, toDeposit, newStake, effectiveRound))
	return cs, nil
}

// StageCompleteWithdraw settles the account, then zeroes the pending request
// and returns the amount to pay out. The staged state is already zeroed before
// the custody transfer runs; the service mutex serializes any re-entrant call.
func (l *Ledger) StageCompleteWithdraw(userID uuid.UUID, now time.Time) (*domain.Changeset, decimal.Decimal, error) {
	a := l.stagedAccount(userID, now)
	if a.State != domain.AccountStateRequested {
		return nil, decimal.Zero, errors.ErrNoPendingRequest
	}

	firstUnsettled := a.LastSettledRound + 1
	settled := l.settleAccount(a)

	amount := a.WithdrawAmount
	a.WithdrawAmount = decimal.Zero
	a.PendingReward = decimal.Zero
	a.State = domain.AccountStateIdle

	pool := l.pool
	oldStake := currentStake(a.Stakes)
	newStake := a.DepositAmount.Add(a.AccruedReward)
	a.Stakes = setStake(a.Stakes, pool.OpenedRounds+1, newStake)
	a.UpdatedAt = now

	pool.TotalStaked = pool.TotalStaked.Add(newStake.Sub(oldStake))
	pool.TotalPendingWithdraw = pool.TotalPendingWithdraw.Sub(amount)
	pool.UpdatedAt = now

	cs := &domain.Changeset{Account: a, Pool: pool}
	if settled.IsPositive() {
		appendEvent(cs, domain.EventRewardSettled, now, rewardSettledPayload(a, settled, firstUnsettled))
	}
	appendEvent(cs, domain.EventWithdrawCompleted, now, withdrawCompletedPayload(userID, amount))
	return cs, amount, nil
}

// StageSettle runs settlement for one account. It returns a nil changeset when
// the cursor is already current.
func (l *Ledger) StageSettle(userID uuid.UUID, now time.Time) (*domain.Changeset, decimal.Decimal, error) {
	if _, ok := l.accounts[userID]; !ok {
		return nil, decimal.Zero, errors.ErrAccountNotFound
	}

	a := l.stagedAccount(userID, now)
	if a.LastSettledRound >= l.pool.ClosedRounds {
		return nil, decimal.Zero, nil
	}

	firstUnsettled := a.LastSettledRound + 1
	settled := l.settleAccount(a)
	a.UpdatedAt = now

	cs := &domain.Changeset{Account: a, Pool: l.pool}
	if settled.IsPositive() {
		appendEvent(cs, domain.EventRewardSettled, now, rewardSettledPayload(a, settled, firstUnsettled))
	}
	return cs, settled, nil
}

// ValidateOpenRound checks every precondition for opening the next round
// without staging anything.
func (l *Ledger) ValidateOpenRound(amount decimal.Decimal, maturesAt, now time.Time, liquid decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrZeroAmount
	}
	if !maturesAt.After(now) {
		return errors.ErrInvalidInput
	}
	if amount.GreaterThan(l.pool.TotalStaked) {
		return errors.ErrInsufficientBalance
	}
	// A matured round must be collected before new capital is deployed.
	if next := l.pool.ClosedRounds + 1; next <= l.pool.OpenedRounds {
		if oldest := l.rounds[next]; oldest != nil && !now.Before(oldest.MaturesAt) {
			return errors.ErrRoundOutOfOrder
		}
	}
	if liquid.LessThan(amount.Add(l.pool.TotalPendingWithdraw)) {
		return errors.ErrInsufficientBalance
	}
	return nil
}

// BuildOpenRound stages the next round with the current total stake frozen as
// its participation base. ValidateOpenRound must have passed.
func (l *Ledger) BuildOpenRound(receiptID uuid.UUID, amount decimal.Decimal, maturesAt, now time.Time) *domain.Changeset {
	pool := l.pool
	round := &domain.Round{
		Index:              pool.OpenedRounds + 1,
		TotalParticipating: pool.TotalStaked,
		InvestedAmount:     amount,
		RealizedReward:     decimal.Zero,
		GrossProceeds:      decimal.Zero,
		FeePaid:            decimal.Zero,
		ReceiptID:          receiptID,
		Status:             domain.RoundStatusOpen,
		OpenedAt:           now,
		MaturesAt:          maturesAt,
	}
	pool.OpenedRounds = round.Index
	pool.UpdatedAt = now

	cs := &domain.Changeset{Round: round, Pool: pool}
	appendEvent(cs, domain.EventRoundOpened, now, roundOpenedPayload(round))
	return cs
}

// NextCloseableRound returns a copy of the round that CloseRound would close,
// enforcing the strict close order and the maturity gate.
func (l *Ledger) NextCloseableRound(now time.Time) (*domain.Round, error) {
	next := l.pool.ClosedRounds + 1
	if next > l.pool.OpenedRounds {
		return nil, errors.ErrRoundOutOfOrder
	}
	r := l.rounds[next]
	if now.Before(r.MaturesAt) {
		return nil, errors.ErrRoundOutOfOrder
	}
	cp := *r
	return &cp, nil
}

// SwapDetail records an exchange conversion performed while closing a round.
type SwapDetail struct {
	AssetIn   string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
}

// BuildCloseRound stages the close of a round. The realized reward saturates
// at zero and the fee is waived down to the available margin, so a close never
// fails on low proceeds and never writes a negative reward.
func (l *Ledger) BuildCloseRound(r *domain.Round, proceeds decimal.Decimal, swap *SwapDetail, configuredFee decimal.Decimal, now time.Time) (*domain.Changeset, decimal.Decimal, decimal.Decimal) {
	margin := decimal.Max(decimal.Zero, proceeds.Sub(r.InvestedAmount))
	feePaid := decimal.Min(configuredFee, margin)
	reward := margin.Sub(feePaid)

	r.GrossProceeds = proceeds
	r.FeePaid = feePaid
	r.RealizedReward = reward
	r.Status = domain.RoundStatusClosed
	closedAt := now
	r.ClosedAt = &closedAt

	pool := l.pool
	pool.ClosedRounds = r.Index
	pool.UpdatedAt = now

	cs := &domain.Changeset{Round: r, Pool: pool}
	if swap != nil {
		appendEvent(cs, domain.EventProceedsSwapped, now, proceedsSwappedPayload(r.Index, swap))
	}
	appendEvent(cs, domain.EventRoundClosed, now, roundClosedPayload(r))
	return cs, feePaid, reward
}

// StageSetCapacity stages a capacity change.
func (l *Ledger) StageSetCapacity(capacity decimal.Decimal, changedBy uuid.UUID, now time.Time) (*domain.Changeset, error) {
	if !capacity.IsPositive() {
		return nil, errors.ErrZeroAmount
	}
	pool := l.pool
	previous := pool.Capacity
	pool.Capacity = capacity
	pool.UpdatedAt = now

	cs := &domain.Changeset{Pool: pool}
	appendEvent(cs, domain.EventCapacityChanged, now, capacityChangedPayload(previous, capacity, changedBy))
	return cs, nil
}

// StageAdminEvent journals a role change without touching balances.
func (l *Ledger) StageAdminEvent(eventType domain.EventType, payload domain.Metadata, now time.Time) *domain.Changeset {
	pool := l.pool
	pool.UpdatedAt = now
	cs := &domain.Changeset{Pool: pool}
	appendEvent(cs, eventType, now, payload)
	return cs
}

// Pool returns a copy of the pool-level state.
func (l *Ledger) Pool() domain.PoolState {
	return l.pool
}

// Round returns a copy of the round with the given index.
func (l *Ledger) Round(index int64) (*domain.Round, error) {
	r, ok := l.rounds[index]
	if !ok {
		return nil, errors.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

// Rounds returns copies of all rounds in ascending index order.
func (l *Ledger) Rounds() []domain.Round {
	out := make([]domain.Round, 0, len(l.rounds))
	for i := int64(1); i <= l.pool.OpenedRounds; i++ {
		if r, ok := l.rounds[i]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// AccountPreview returns a copy of the account with settlement applied to the
// copy only. Live state is untouched.
func (l *Ledger) AccountPreview(userID uuid.UUID) (*domain.Account, error) {
	if _, ok := l.accounts[userID]; !ok {
		return nil, errors.ErrAccountNotFound
	}
	a := l.copyAccount(l.accounts[userID])
	l.settleAccount(a)
	return a, nil
}

// stagedAccount returns a deep copy of the user's account, or a fresh empty
// account whose settlement cursor starts at the current closed round.
func (l *Ledger) stagedAccount(userID uuid.UUID, now time.Time) *domain.Account {
	if a, ok := l.accounts[userID]; ok {
		return l.copyAccount(a)
	}
	return &domain.Account{
		UserID:           userID,
		DepositAmount:    decimal.Zero,
		AccruedReward:    decimal.Zero,
		PendingReward:    decimal.Zero,
		WithdrawAmount:   decimal.Zero,
		LastSettledRound: l.pool.ClosedRounds,
		State:            domain.AccountStateIdle,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (l *Ledger) copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	cp.Stakes = make([]domain.StakePoint, len(a.Stakes))
	copy(cp.Stakes, a.Stakes)
	return &cp
}

// settleAccount walks the closed rounds past the account's cursor and accrues
// floor(reward * stake / totalParticipating) per round. Remainders stay with
// the pool. The stake between explicit points is forward-filled.
func (l *Ledger) settleAccount(a *domain.Account) decimal.Decimal {
	total := decimal.Zero
	for r := a.LastSettledRound + 1; r <= l.pool.ClosedRounds; r++ {
		round, ok := l.rounds[r]
		if !ok {
			continue
		}
		stake := stakeAt(a.Stakes, r)
		if stake.IsPositive() && round.RealizedReward.IsPositive() && round.TotalParticipating.IsPositive() {
			payout, _ := round.RealizedReward.Mul(stake).QuoRem(round.TotalParticipating, 0)
			a.AccruedReward = a.AccruedReward.Add(payout)
			total = total.Add(payout)
		}
	}
	a.LastSettledRound = l.pool.ClosedRounds
	a.Stakes = pruneStakes(a.Stakes, a.LastSettledRound)
	return total
}

// stakeAt resolves the participation stake for a round: the nearest point at
// or before it, zero when none exists yet.
func stakeAt(points []domain.StakePoint, round int64) decimal.Decimal {
	i := sort.Search(len(points), func(i int) bool { return points[i].FromRound > round })
	if i == 0 {
		return decimal.Zero
	}
	return points[i-1].Stake
}

// currentStake is the stake effective for every future round.
func currentStake(points []domain.StakePoint) decimal.Decimal {
	if len(points) == 0 {
		return decimal.Zero
	}
	return points[len(points)-1].Stake
}

// setStake overwrites or appends the point for fromRound. User actions between
// two round opens collapse onto the same point.
func setStake(points []domain.StakePoint, fromRound int64, stake decimal.Decimal) []domain.StakePoint {
	if n := len(points); n > 0 && points[n-1].FromRound == fromRound {
		points[n-1].Stake = stake
		return points
	}
	return append(points, domain.StakePoint{FromRound: fromRound, Stake: stake})
}

// pruneStakes drops points superseded before the first unsettled round,
// keeping the one still effective for it.
func pruneStakes(points []domain.StakePoint, settledThrough int64) []domain.StakePoint {
	next := settledThrough + 1
	i := sort.Search(len(points), func(i int) bool { return points[i].FromRound > next })
	if i <= 1 {
		return points
	}
	return append(points[:0], points[i-1:]...)
}

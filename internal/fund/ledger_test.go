package fund

import (
	"testing"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestLedger(capacity int64) *Ledger {
	return NewLedger(decimal.NewFromInt(capacity))
}

func deposit(t *testing.T, l *Ledger, userID uuid.UUID, amount int64, now time.Time) {
	t.Helper()
	cs, err := l.StageDeposit(userID, decimal.NewFromInt(amount), now)
	require.NoError(t, err)
	l.Commit(cs)
}

func openRound(t *testing.T, l *Ledger, invest int64, maturesAt, now time.Time) *domain.Round {
	t.Helper()
	amount := decimal.NewFromInt(invest)
	err := l.ValidateOpenRound(amount, maturesAt, now, decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	cs := l.BuildOpenRound(uuid.New(), amount, maturesAt, now)
	l.Commit(cs)
	return cs.Round
}

func closeRound(t *testing.T, l *Ledger, proceeds int64, now time.Time) *domain.Round {
	t.Helper()
	r, err := l.NextCloseableRound(now)
	require.NoError(t, err)
	cs, _, _ := l.BuildCloseRound(r, decimal.NewFromInt(proceeds), nil, decimal.Zero, now)
	l.Commit(cs)
	return cs.Round
}

func TestTwoUsersTwoRounds(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()
	userB := uuid.New()

	// 1. A deposits 1000, B deposits 1500
	deposit(t, l, userA, 1000, testBase)
	deposit(t, l, userB, 1500, testBase)
	assert.Equal(t, "2500", l.Pool().TotalStaked.String())

	// 2. Round 1 freezes the 2500 base and later realizes a reward of 100
	mature1 := testBase.Add(24 * time.Hour)
	r1 := openRound(t, l, 2000, mature1, testBase)
	assert.Equal(t, "2500", r1.TotalParticipating.String())

	t1 := mature1.Add(time.Hour)
	r1 = closeRound(t, l, 2100, t1)
	assert.Equal(t, "100", r1.RealizedReward.String())

	// 3. Round 2 opens on the same base (no balance changed) and realizes 400
	mature2 := t1.Add(24 * time.Hour)
	r2 := openRound(t, l, 2000, mature2, t1)
	assert.Equal(t, "2500", r2.TotalParticipating.String())

	t2 := mature2.Add(time.Hour)
	r2 = closeRound(t, l, 2400, t2)
	assert.Equal(t, "400", r2.RealizedReward.String())

	// 4. A settles 40 + 160 = 200, B settles 60 + 240 = 300
	csA, settledA, err := l.StageSettle(userA, t2)
	require.NoError(t, err)
	assert.Equal(t, "200", settledA.String())
	l.Commit(csA)

	csB, settledB, err := l.StageSettle(userB, t2)
	require.NoError(t, err)
	assert.Equal(t, "300", settledB.String())
	l.Commit(csB)

	// 5. Claimable balances are 1200 and 1800
	a, err := l.AccountPreview(userA)
	require.NoError(t, err)
	assert.Equal(t, "1200", a.DepositAmount.Add(a.AccruedReward).String())

	b, err := l.AccountPreview(userB)
	require.NoError(t, err)
	assert.Equal(t, "1800", b.DepositAmount.Add(b.AccruedReward).String())
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	l := newTestLedger(10_000)
	userID := uuid.New()

	_, err := l.StageDeposit(userID, decimal.Zero, testBase)
	assert.ErrorIs(t, err, errors.ErrZeroAmount)

	_, err = l.StageDeposit(userID, decimal.NewFromInt(-5), testBase)
	assert.ErrorIs(t, err, errors.ErrZeroAmount)
}

func TestDeposit_RejectsOverCapacity(t *testing.T) {
	l := newTestLedger(1000)
	userA := uuid.New()
	userB := uuid.New()

	deposit(t, l, userA, 800, testBase)

	_, err := l.StageDeposit(userB, decimal.NewFromInt(300), testBase)
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)

	// The rejected deposit left nothing behind
	assert.Equal(t, "800", l.Pool().TotalStaked.String())

	deposit(t, l, userB, 200, testBase)
	assert.Equal(t, "1000", l.Pool().TotalStaked.String())
}

func TestDeposit_MidRoundJoinsNextRound(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()
	userC := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)

	// C joins while round 1 is in flight; round 1 keeps its frozen base
	deposit(t, l, userC, 500, testBase.Add(time.Hour))
	assert.Equal(t, "1500", l.Pool().TotalStaked.String())

	closeRound(t, l, 1100, mature1.Add(time.Hour))

	// C earned nothing from round 1
	cs, settledC, err := l.StageSettle(userC, mature1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0", settledC.String())
	l.Commit(cs)

	// A takes round 1 in full
	cs, settledA, err := l.StageSettle(userA, mature1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "100", settledA.String())
	l.Commit(cs)

	// Round 2 includes C at its deposited stake; A's settled reward stays
	// out of participation until A acts again
	mature2 := mature1.Add(48 * time.Hour)
	r2 := openRound(t, l, 1000, mature2, mature1.Add(2*time.Hour))
	assert.Equal(t, "1500", r2.TotalParticipating.String())
}

func TestDeposit_SettlesBeforeRestaking(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1200, mature1.Add(time.Hour))

	// The second deposit settles the 200 reward and stakes it alongside
	now := mature1.Add(2 * time.Hour)
	cs, err := l.StageDeposit(userA, decimal.NewFromInt(300), now)
	require.NoError(t, err)
	l.Commit(cs)

	assert.Equal(t, "200", cs.Account.AccruedReward.String())
	assert.Equal(t, "1300", cs.Account.DepositAmount.String())
	assert.Equal(t, "1500", l.Pool().TotalStaked.String())
	assert.Len(t, cs.Events, 2)
	assert.Equal(t, domain.EventRewardSettled, cs.Events[0].Type)
	assert.Equal(t, domain.EventDepositMade, cs.Events[1].Type)
}

func TestSettle_NoCompoundingWithoutAction(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1100, mature1.Add(time.Hour))

	// No action between rounds: round 2 still runs on the original 1000
	mature2 := mature1.Add(48 * time.Hour)
	r2 := openRound(t, l, 1000, mature2, mature1.Add(2*time.Hour))
	assert.Equal(t, "1000", r2.TotalParticipating.String())

	closeRound(t, l, 1100, mature2.Add(time.Hour))

	// 100 per round, not 100 then 110
	cs, settled, err := l.StageSettle(userA, mature2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "200", settled.String())
	l.Commit(cs)
}

func TestSettle_IsIdempotent(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1150, mature1.Add(time.Hour))

	now := mature1.Add(2 * time.Hour)
	cs, settled, err := l.StageSettle(userA, now)
	require.NoError(t, err)
	assert.Equal(t, "150", settled.String())
	l.Commit(cs)

	// Cursor is current, second settle is a no-op
	cs, settled, err = l.StageSettle(userA, now)
	require.NoError(t, err)
	assert.Nil(t, cs)
	assert.Equal(t, "0", settled.String())

	a, err := l.AccountPreview(userA)
	require.NoError(t, err)
	assert.Equal(t, "150", a.AccruedReward.String())
}

func TestSettle_UnknownAccount(t *testing.T) {
	l := newTestLedger(100_000)

	_, _, err := l.StageSettle(uuid.New(), testBase)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestRequestWithdraw_DrawsRewardFirst(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1200, mature1.Add(time.Hour))

	// Request 150 against a 200 reward: principal untouched
	now := mature1.Add(2 * time.Hour)
	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(150), decimal.NewFromInt(10_000), now)
	require.NoError(t, err)
	l.Commit(cs)

	a := cs.Account
	assert.Equal(t, "1000", a.DepositAmount.String())
	assert.Equal(t, "50", a.AccruedReward.String())
	assert.Equal(t, "150", a.PendingReward.String())
	assert.Equal(t, "150", a.WithdrawAmount.String())
	assert.Equal(t, domain.AccountStateRequested, a.State)

	// Remaining 1050 participates in the next round; 150 is excluded
	assert.Equal(t, "1050", l.Pool().TotalStaked.String())
	assert.Equal(t, "150", l.Pool().TotalPendingWithdraw.String())
}

func TestRequestWithdraw_RejectsOverBalance(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	_, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(1001), decimal.NewFromInt(10_000), testBase)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
}

func TestRequestWithdraw_RejectsLiquidityShortfall(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()
	userB := uuid.New()

	deposit(t, l, userA, 1000, testBase)
	deposit(t, l, userB, 1000, testBase)

	// A's request consumes 800 of the 1000 liquid
	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(800), decimal.NewFromInt(1000), testBase)
	require.NoError(t, err)
	l.Commit(cs)

	// B's request would need 1100 liquid in total
	_, err = l.StageRequestWithdraw(userB, decimal.NewFromInt(300), decimal.NewFromInt(1000), testBase)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
}

func TestRequestWithdraw_RejectsSecondRequest(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(200), decimal.NewFromInt(10_000), testBase)
	require.NoError(t, err)
	l.Commit(cs)

	_, err = l.StageRequestWithdraw(userA, decimal.NewFromInt(100), decimal.NewFromInt(10_000), testBase)
	assert.ErrorIs(t, err, errors.ErrAlreadyRequested)
}

func TestRequestWithdraw_ExcludedFromNextRound(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()
	userB := uuid.New()

	deposit(t, l, userA, 1000, testBase)
	deposit(t, l, userB, 1000, testBase)

	cs, err := l.StageRequestWithdraw(userB, decimal.NewFromInt(500), decimal.NewFromInt(10_000), testBase)
	require.NoError(t, err)
	l.Commit(cs)

	mature1 := testBase.Add(24 * time.Hour)
	r1 := openRound(t, l, 1000, mature1, testBase)
	assert.Equal(t, "1500", r1.TotalParticipating.String())

	closeRound(t, l, 1150, mature1.Add(time.Hour))

	now := mature1.Add(2 * time.Hour)
	cs, settledA, err := l.StageSettle(userA, now)
	require.NoError(t, err)
	assert.Equal(t, "100", settledA.String())
	l.Commit(cs)

	cs, settledB, err := l.StageSettle(userB, now)
	require.NoError(t, err)
	assert.Equal(t, "50", settledB.String())
	l.Commit(cs)
}

func TestCancelWithdraw_RestoresRewardFirst(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1200, mature1.Add(time.Hour))

	now := mature1.Add(2 * time.Hour)
	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(150), decimal.NewFromInt(10_000), now)
	require.NoError(t, err)
	l.Commit(cs)

	// Partial cancel restores the reward portion and keeps the request open
	cs, err = l.StageCancelWithdraw(userA, decimal.NewFromInt(100), now)
	require.NoError(t, err)
	l.Commit(cs)

	a := cs.Account
	assert.Equal(t, "150", a.AccruedReward.String())
	assert.Equal(t, "50", a.PendingReward.String())
	assert.Equal(t, "50", a.WithdrawAmount.String())
	assert.Equal(t, domain.AccountStateRequested, a.State)
	assert.Equal(t, "1150", l.Pool().TotalStaked.String())
	assert.Equal(t, "50", l.Pool().TotalPendingWithdraw.String())

	// Cancelling the rest returns the account to idle
	cs, err = l.StageCancelWithdraw(userA, decimal.NewFromInt(50), now)
	require.NoError(t, err)
	l.Commit(cs)

	a = cs.Account
	assert.Equal(t, "200", a.AccruedReward.String())
	assert.Equal(t, "0", a.PendingReward.String())
	assert.Equal(t, "0", a.WithdrawAmount.String())
	assert.Equal(t, domain.AccountStateIdle, a.State)
	assert.Equal(t, "1200", l.Pool().TotalStaked.String())
	assert.Equal(t, "0", l.Pool().TotalPendingWithdraw.String())
}

func TestCancelWithdraw_Guards(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	// Nothing requested yet
	_, err := l.StageCancelWithdraw(userA, decimal.NewFromInt(100), testBase)
	assert.ErrorIs(t, err, errors.ErrNoPendingRequest)

	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(200), decimal.NewFromInt(10_000), testBase)
	require.NoError(t, err)
	l.Commit(cs)

	_, err = l.StageCancelWithdraw(userA, decimal.Zero, testBase)
	assert.ErrorIs(t, err, errors.ErrZeroAmount)

	_, err = l.StageCancelWithdraw(userA, decimal.NewFromInt(201), testBase)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
}

func TestCompleteWithdraw_PaysOutAndResets(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(400), decimal.NewFromInt(10_000), testBase)
	require.NoError(t, err)
	l.Commit(cs)

	cs, amount, err := l.StageCompleteWithdraw(userA, testBase)
	require.NoError(t, err)
	assert.Equal(t, "400", amount.String())
	l.Commit(cs)

	a := cs.Account
	assert.Equal(t, "600", a.DepositAmount.String())
	assert.Equal(t, "0", a.WithdrawAmount.String())
	assert.Equal(t, "0", a.PendingReward.String())
	assert.Equal(t, domain.AccountStateIdle, a.State)
	assert.Equal(t, "0", l.Pool().TotalPendingWithdraw.String())
	assert.Equal(t, "600", l.Pool().TotalStaked.String())

	// A second completion has nothing to pay
	_, _, err = l.StageCompleteWithdraw(userA, testBase)
	assert.ErrorIs(t, err, errors.ErrNoPendingRequest)
}

func TestOpenRound_Preconditions(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	maturesAt := testBase.Add(24 * time.Hour)
	liquid := decimal.NewFromInt(10_000)

	err := l.ValidateOpenRound(decimal.Zero, maturesAt, testBase, liquid)
	assert.ErrorIs(t, err, errors.ErrZeroAmount)

	err = l.ValidateOpenRound(decimal.NewFromInt(500), testBase, testBase, liquid)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	err = l.ValidateOpenRound(decimal.NewFromInt(1001), maturesAt, testBase, liquid)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	// Liquid must cover the deployment plus every pending withdrawal
	cs, err := l.StageRequestWithdraw(userA, decimal.NewFromInt(300), liquid, testBase)
	require.NoError(t, err)
	l.Commit(cs)

	err = l.ValidateOpenRound(decimal.NewFromInt(500), maturesAt, testBase, decimal.NewFromInt(700))
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	err = l.ValidateOpenRound(decimal.NewFromInt(500), maturesAt, testBase, decimal.NewFromInt(800))
	assert.NoError(t, err)
}

func TestOpenRound_BlockedByMaturedUncollectedRound(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 500, mature1, testBase)

	// Overlapping rounds are fine while round 1 is still running
	err := l.ValidateOpenRound(decimal.NewFromInt(300), testBase.Add(48*time.Hour), testBase.Add(time.Hour), decimal.NewFromInt(10_000))
	assert.NoError(t, err)

	// Once round 1 matures it must be collected before deploying more
	err = l.ValidateOpenRound(decimal.NewFromInt(300), testBase.Add(72*time.Hour), mature1.Add(time.Hour), decimal.NewFromInt(10_000))
	assert.ErrorIs(t, err, errors.ErrRoundOutOfOrder)

	closeRound(t, l, 550, mature1.Add(time.Hour))

	err = l.ValidateOpenRound(decimal.NewFromInt(300), testBase.Add(72*time.Hour), mature1.Add(2*time.Hour), decimal.NewFromInt(10_000))
	assert.NoError(t, err)
}

func TestCloseRound_StrictOrderAndMaturity(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	// Nothing to close yet
	_, err := l.NextCloseableRound(testBase)
	assert.ErrorIs(t, err, errors.ErrRoundOutOfOrder)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 400, mature1, testBase)
	mature2 := testBase.Add(12 * time.Hour)
	openRound(t, l, 400, mature2, testBase.Add(time.Hour))

	// Round 1 gates the queue even though round 2 matured first
	_, err = l.NextCloseableRound(mature2.Add(time.Hour))
	assert.ErrorIs(t, err, errors.ErrRoundOutOfOrder)

	r, err := l.NextCloseableRound(mature1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Index)

	cs, _, _ := l.BuildCloseRound(r, decimal.NewFromInt(440), nil, decimal.Zero, mature1.Add(time.Hour))
	l.Commit(cs)

	r, err = l.NextCloseableRound(mature1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Index)
}

func TestCloseRound_LossSaturatesAtZero(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)

	now := mature1.Add(time.Hour)
	r, err := l.NextCloseableRound(now)
	require.NoError(t, err)

	// Proceeds below the invested amount: no fee, no reward, never negative
	cs, feePaid, reward := l.BuildCloseRound(r, decimal.NewFromInt(900), nil, decimal.NewFromInt(50), now)
	assert.Equal(t, "0", feePaid.String())
	assert.Equal(t, "0", reward.String())
	l.Commit(cs)

	assert.Equal(t, "0", cs.Round.RealizedReward.String())
	assert.Equal(t, "900", cs.Round.GrossProceeds.String())

	// Settlement over a zero-reward round accrues nothing
	sc, settled, err := l.StageSettle(userA, now)
	require.NoError(t, err)
	assert.Equal(t, "0", settled.String())
	l.Commit(sc)
}

func TestCloseRound_FeeLimitedToMargin(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)

	now := mature1.Add(time.Hour)
	r, err := l.NextCloseableRound(now)
	require.NoError(t, err)

	// Margin of 30 with a configured fee of 50: fee is capped, reward is zero
	_, feePaid, reward := l.BuildCloseRound(r, decimal.NewFromInt(1030), nil, decimal.NewFromInt(50), now)
	assert.Equal(t, "30", feePaid.String())
	assert.Equal(t, "0", reward.String())
}

func TestSettlement_RemainderStaysWithPool(t *testing.T) {
	l := newTestLedger(100_000)
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	stakes := []int64{100, 200, 300}

	for i, u := range users {
		deposit(t, l, u, stakes[i], testBase)
	}

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 600, mature1, testBase)
	closeRound(t, l, 700, mature1.Add(time.Hour))

	// floor(100*100/600)=16, floor(100*200/600)=33, floor(100*300/600)=50
	total := decimal.Zero
	for _, u := range users {
		cs, settled, err := l.StageSettle(u, mature1.Add(time.Hour))
		require.NoError(t, err)
		l.Commit(cs)
		total = total.Add(settled)
	}

	assert.Equal(t, "99", total.String())
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestEventsSequencedAcrossCommits(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	var all []domain.Event

	cs, err := l.StageDeposit(userA, decimal.NewFromInt(1000), testBase)
	require.NoError(t, err)
	l.Commit(cs)
	all = append(all, cs.Events...)

	mature1 := testBase.Add(24 * time.Hour)
	require.NoError(t, l.ValidateOpenRound(decimal.NewFromInt(500), mature1, testBase, decimal.NewFromInt(10_000)))
	cs = l.BuildOpenRound(uuid.New(), decimal.NewFromInt(500), mature1, testBase)
	l.Commit(cs)
	all = append(all, cs.Events...)

	now := mature1.Add(time.Hour)
	r, err := l.NextCloseableRound(now)
	require.NoError(t, err)
	cs, _, _ = l.BuildCloseRound(r, decimal.NewFromInt(550), nil, decimal.Zero, now)
	l.Commit(cs)
	all = append(all, cs.Events...)

	cs, _, err = l.StageSettle(userA, now)
	require.NoError(t, err)
	l.Commit(cs)
	all = append(all, cs.Events...)

	types := []domain.EventType{
		domain.EventDepositMade,
		domain.EventRoundOpened,
		domain.EventRoundClosed,
		domain.EventRewardSettled,
	}
	require.Len(t, all, len(types))
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, types[i], e.Type)
		assert.NotEqual(t, uuid.Nil, e.ID)
	}
	assert.Equal(t, int64(len(all)), l.Pool().EventSeq)
}

func TestAccountPreview_DoesNotMutateState(t *testing.T) {
	l := newTestLedger(100_000)
	userA := uuid.New()

	deposit(t, l, userA, 1000, testBase)

	mature1 := testBase.Add(24 * time.Hour)
	openRound(t, l, 1000, mature1, testBase)
	closeRound(t, l, 1100, mature1.Add(time.Hour))

	a, err := l.AccountPreview(userA)
	require.NoError(t, err)
	assert.Equal(t, "100", a.AccruedReward.String())
	assert.Equal(t, int64(1), a.LastSettledRound)

	// Preview left the stored cursor untouched, settlement still pays
	cs, settled, err := l.StageSettle(userA, mature1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "100", settled.String())
	l.Commit(cs)
}

func TestRehydrate_RestoresSettlement(t *testing.T) {
	userA := uuid.New()
	closedAt := testBase.Add(25 * time.Hour)

	snap := &domain.FundSnapshot{
		Pool: domain.PoolState{
			Capacity:             decimal.NewFromInt(100_000),
			TotalStaked:          decimal.NewFromInt(1000),
			TotalPendingWithdraw: decimal.Zero,
			OpenedRounds:         1,
			ClosedRounds:         1,
			EventSeq:             3,
		},
		Rounds: []domain.Round{
			{
				Index:              1,
				TotalParticipating: decimal.NewFromInt(1000),
				InvestedAmount:     decimal.NewFromInt(800),
				RealizedReward:     decimal.NewFromInt(120),
				GrossProceeds:      decimal.NewFromInt(920),
				FeePaid:            decimal.Zero,
				ReceiptID:          uuid.New(),
				Status:             domain.RoundStatusClosed,
				OpenedAt:           testBase,
				MaturesAt:          testBase.Add(24 * time.Hour),
				ClosedAt:           &closedAt,
			},
		},
		Accounts: []domain.Account{
			{
				UserID:           userA,
				DepositAmount:    decimal.NewFromInt(1000),
				AccruedReward:    decimal.Zero,
				PendingReward:    decimal.Zero,
				WithdrawAmount:   decimal.Zero,
				LastSettledRound: 0,
				State:            domain.AccountStateIdle,
				Stakes:           []domain.StakePoint{{FromRound: 1, Stake: decimal.NewFromInt(1000)}},
			},
		},
	}

	l := Rehydrate(snap)

	cs, settled, err := l.StageSettle(userA, closedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "120", settled.String())
	l.Commit(cs)

	// Event numbering continues from the persisted sequence
	require.Len(t, cs.Events, 1)
	assert.Equal(t, int64(4), cs.Events[0].Seq)
}

package fund

import (
	"time"

	"stokvel/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal events carry every figure needed to rebuild the ledger from the log
// alone. Amounts are serialized as strings to keep base-unit precision intact
// in JSON. Settlement cursor advances that pay out nothing are derived state
// and do not get an event of their own.

// appendEvent stages one journal entry on the changeset, bumping the staged
// sequence counter.
func appendEvent(cs *domain.Changeset, eventType domain.EventType, now time.Time, payload domain.Metadata) {
	cs.Pool.EventSeq++
	cs.Events = append(cs.Events, domain.Event{
		ID:         uuid.New(),
		Seq:        cs.Pool.EventSeq,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: now,
	})
}

func depositPayload(a *domain.Account, amount, stake decimal.Decimal, effectiveRound int64) domain.Metadata {
	return domain.Metadata{
		"user_id":         a.UserID.String(),
		"amount":          amount.String(),
		"deposit_amount":  a.DepositAmount.String(),
		"stake":           stake.String(),
		"effective_round": effectiveRound,
	}
}

func withdrawRequestedPayload(a *domain.Account, amount, fromReward, fromDeposit, stake decimal.Decimal, effectiveRound int64) domain.Metadata {
	return domain.Metadata{
		"user_id":         a.UserID.String(),
		"amount":          amount.String(),
		"from_reward":     fromReward.String(),
		"from_deposit":    fromDeposit.String(),
		"withdraw_amount": a.WithdrawAmount.String(),
		"stake":           stake.String(),
		"effective_round": effectiveRound,
	}
}

func withdrawCancelledPayload(a *domain.Account, amount, toReward, toDeposit, stake decimal.Decimal, effectiveRound int64) domain.Metadata {
	return domain.Metadata{
		"user_id":         a.UserID.String(),
		"amount":          amount.String(),
		"to_reward":       toReward.String(),
		"to_deposit":      toDeposit.String(),
		"withdraw_amount": a.WithdrawAmount.String(),
		"stake":           stake.String(),
		"effective_round": effectiveRound,
	}
}

func withdrawCompletedPayload(userID uuid.UUID, amount decimal.Decimal) domain.Metadata {
	return domain.Metadata{
		"user_id": userID.String(),
		"amount":  amount.String(),
	}
}

func rewardSettledPayload(a *domain.Account, amount decimal.Decimal, fromRound int64) domain.Metadata {
	return domain.Metadata{
		"user_id":        a.UserID.String(),
		"amount":         amount.String(),
		"from_round":     fromRound,
		"through_round":  a.LastSettledRound,
		"accrued_reward": a.AccruedReward.String(),
	}
}

func roundOpenedPayload(r *domain.Round) domain.Metadata {
	return domain.Metadata{
		"round":               r.Index,
		"total_participating": r.TotalParticipating.String(),
		"invested_amount":     r.InvestedAmount.String(),
		"receipt_id":          r.ReceiptID.String(),
		"matures_at":          r.MaturesAt.UTC().Format(time.RFC3339),
	}
}

func proceedsSwappedPayload(roundIndex int64, swap *SwapDetail) domain.Metadata {
	return domain.Metadata{
		"round":      roundIndex,
		"asset_in":   swap.AssetIn,
		"amount_in":  swap.AmountIn.String(),
		"amount_out": swap.AmountOut.String(),
	}
}

func roundClosedPayload(r *domain.Round) domain.Metadata {
	return domain.Metadata{
		"round":               r.Index,
		"invested_amount":     r.InvestedAmount.String(),
		"gross_proceeds":      r.GrossProceeds.String(),
		"fee_paid":            r.FeePaid.String(),
		"realized_reward":     r.RealizedReward.String(),
		"total_participating": r.TotalParticipating.String(),
	}
}

func capacityChangedPayload(previous, capacity decimal.Decimal, changedBy uuid.UUID) domain.Metadata {
	return domain.Metadata{
		"previous":   previous.String(),
		"capacity":   capacity.String(),
		"changed_by": changedBy.String(),
	}
}

func roleChangedPayload(field string, previous, current, changedBy uuid.UUID) domain.Metadata {
	return domain.Metadata{
		"previous":   previous.String(),
		field:        current.String(),
		"changed_by": changedBy.String(),
	}
}

func ownerProposedPayload(owner, successor uuid.UUID) domain.Metadata {
	return domain.Metadata{
		"owner":     owner.String(),
		"successor": successor.String(),
	}
}

func ownerAcceptedPayload(previous, owner uuid.UUID) domain.Metadata {
	return domain.Metadata{
		"previous": previous.String(),
		"owner":    owner.String(),
	}
}

// Package custody tracks the pool's custodial cash position: the liquid
// balance deposits land in and withdrawals draw from, the capital deployed
// into open rounds, and the fees paid out. Every movement is journaled by the
// repository in the same transaction that adjusts the balances.
package custody

import (
	"context"
	"fmt"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"
	"stokvel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// TransferIn credits a deposit to the liquid balance.
func (s *Service) TransferIn(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrZeroAmount
	}
	if err := s.repo.Credit(ctx, amount, "deposit:"+userID.String()); err != nil {
		return errors.Wrap(err, "failed to credit vault")
	}
	s.logger.Debug("vault credited", map[string]interface{}{
		"user_id": userID.String(),
		"amount":  amount.String(),
	})
	return nil
}

// TransferOut debits a completed withdrawal from the liquid balance.
func (s *Service) TransferOut(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrZeroAmount
	}
	if err := s.repo.Debit(ctx, amount, "withdraw:"+userID.String()); err != nil {
		return errors.Wrap(err, "failed to debit vault")
	}
	s.logger.Debug("vault debited", map[string]interface{}{
		"user_id": userID.String(),
		"amount":  amount.String(),
	})
	return nil
}

// Deploy moves liquid funds into the deployed balance for a newly opened
// round.
func (s *Service) Deploy(ctx context.Context, roundIndex int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrZeroAmount
	}
	if err := s.repo.Deploy(ctx, amount, fmt.Sprintf("round:%d", roundIndex)); err != nil {
		return errors.Wrap(err, "failed to deploy vault funds")
	}
	return nil
}

// Collect returns a closed round's principal from the deployed balance and
// credits the full proceeds to liquid. Proceeds below principal book the loss.
func (s *Service) Collect(ctx context.Context, roundIndex int64, principal, proceeds decimal.Decimal) error {
	if !principal.IsPositive() || proceeds.IsNegative() {
		return errors.ErrZeroAmount
	}
	if err := s.repo.Collect(ctx, principal, proceeds, fmt.Sprintf("round:%d", roundIndex)); err != nil {
		return errors.Wrap(err, "failed to collect vault funds")
	}
	return nil
}

// PayFee debits the round fee from the liquid balance.
func (s *Service) PayFee(ctx context.Context, recipient uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrZeroAmount
	}
	if err := s.repo.PayFee(ctx, amount, "fee:"+recipient.String()); err != nil {
		return errors.Wrap(err, "failed to pay fee from vault")
	}
	return nil
}

// LiquidBalance returns the funds available for withdrawals and deployments.
func (s *Service) LiquidBalance(ctx context.Context) (decimal.Decimal, error) {
	v, err := s.repo.Vault(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to read vault")
	}
	return v.Liquid, nil
}

// Vault returns the full cash position.
func (s *Service) Vault(ctx context.Context) (*domain.Vault, error) {
	v, err := s.repo.Vault(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read vault")
	}
	return v, nil
}

// Movements returns the newest movement journal entries.
func (s *Service) Movements(ctx context.Context, limit, offset int) ([]domain.VaultMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.repo.Movements(ctx, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vault movements")
	}
	return rows, nil
}

// Repository interface
type Repository interface {
	Vault(ctx context.Context) (*domain.Vault, error)
	Credit(ctx context.Context, amount decimal.Decimal, ref string) error
	Debit(ctx context.Context, amount decimal.Decimal, ref string) error
	Deploy(ctx context.Context, amount decimal.Decimal, ref string) error
	Collect(ctx context.Context, principal, proceeds decimal.Decimal, ref string) error
	PayFee(ctx context.Context, amount decimal.Decimal, ref string) error
	Movements(ctx context.Context, limit, offset int) ([]domain.VaultMovement, error)
}

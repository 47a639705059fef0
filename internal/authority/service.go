// ==============================================================================
// AUTHORITY SERVICE - internal/authority/service.go
// ==============================================================================
// Package authority keeps the privileged role assignments (owner, manager, fee
// recipient) and the operator credentials behind them. Ownership moves in two
// phases: the owner proposes a successor, the successor accepts.
package authority

import (
	"context"
	"sync"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/google/uuid"
)

type Service struct {
	repo      Repository
	jwtSecret string
	jwtExpiry time.Duration

	mu        sync.RWMutex
	authority domain.Authority
	loaded    bool
}

func NewService(repo Repository, jwtSecret string, jwtExpiry time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

// Load reads the authority row into the in-memory copy. Role checks are served
// from that copy; every mutation persists first and refreshes it.
func (s *Service) Load(ctx context.Context) error {
	a, err := s.repo.GetAuthority(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load authority")
	}

	s.mu.Lock()
	s.authority = *a
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Authority returns the current role assignments.
func (s *Service) Authority(ctx context.Context) domain.Authority {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authority
}

func (s *Service) IsOwner(ctx context.Context, id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && s.authority.Owner == id
}

func (s *Service) IsManager(ctx context.Context, id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && s.authority.Manager == id
}

func (s *Service) FeeRecipient(ctx context.Context) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return uuid.Nil, errors.ErrOperatorNotFound
	}
	return s.authority.FeeRecipient, nil
}

// ProposeOwner records successor as the pending owner. Proposing uuid.Nil
// revokes an outstanding proposal.
func (s *Service) ProposeOwner(ctx context.Context, callerID, successor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.authority.Owner != callerID {
		return errors.ErrUnauthorized
	}

	a := s.authority
	if successor == uuid.Nil {
		a.PendingOwner = nil
	} else {
		a.PendingOwner = &successor
	}
	a.UpdatedAt = time.Now()

	if err := s.repo.SaveAuthority(ctx, &a); err != nil {
		return errors.Wrap(err, "failed to save authority")
	}
	s.authority = a
	return nil
}

// AcceptOwner completes the transfer. Only the proposed successor may call it;
// it returns the previous owner.
func (s *Service) AcceptOwner(ctx context.Context, callerID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.authority.PendingOwner == nil || *s.authority.PendingOwner != callerID {
		return uuid.Nil, errors.ErrUnauthorized
	}

	a := s.authority
	previous := a.Owner
	a.Owner = callerID
	a.PendingOwner = nil
	a.UpdatedAt = time.Now()

	if err := s.repo.SaveAuthority(ctx, &a); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to save authority")
	}
	s.authority = a
	return previous, nil
}

// SetManager assigns the round manager. Owner only; returns the previous
// manager.
func (s *Service) SetManager(ctx context.Context, callerID, manager uuid.UUID) (uuid.UUID, error) {
	return s.setRole(ctx, callerID, manager, func(a *domain.Authority) *uuid.UUID { return &a.Manager })
}

// SetFeeRecipient assigns where round fees go. Owner only; returns the
// previous recipient.
func (s *Service) SetFeeRecipient(ctx context.Context, callerID, recipient uuid.UUID) (uuid.UUID, error) {
	return s.setRole(ctx, callerID, recipient, func(a *domain.Authority) *uuid.UUID { return &a.FeeRecipient })
}

func (s *Service) setRole(ctx context.Context, callerID, assignee uuid.UUID, field func(*domain.Authority) *uuid.UUID) (uuid.UUID, error) {
	if assignee == uuid.Nil {
		return uuid.Nil, errors.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.authority.Owner != callerID {
		return uuid.Nil, errors.ErrUnauthorized
	}

	a := s.authority
	slot := field(&a)
	previous := *slot
	*slot = assignee
	a.UpdatedAt = time.Now()

	if err := s.repo.SaveAuthority(ctx, &a); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to save authority")
	}
	s.authority = a
	return previous, nil
}

// Repository interface
type Repository interface {
	GetAuthority(ctx context.Context) (*domain.Authority, error)
	SaveAuthority(ctx context.Context, a *domain.Authority) error
	CreateOperator(ctx context.Context, op *domain.Operator) error
	FindOperatorByName(ctx context.Context, name string) (*domain.Operator, error)
	FindOperatorByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error)
	TouchOperator(ctx context.Context, id uuid.UUID, at time.Time) error
	CountOperators(ctx context.Context) (int, error)
}

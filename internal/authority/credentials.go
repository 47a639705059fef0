package authority

import (
	"context"
	stderrors "errors"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest captures operator credentials.
type LoginRequest struct {
	Name   string `json:"name" validate:"required,min=3,max=64"`
	Secret string `json:"secret" validate:"required,min=12"`
}

// RegisterOperatorRequest creates a new operator principal. Owner only.
type RegisterOperatorRequest struct {
	Name   string              `json:"name" validate:"required,min=3,max=64"`
	Secret string              `json:"secret" validate:"required,min=12"`
	Role   domain.OperatorRole `json:"role" validate:"required,oneof=owner manager"`
}

// TokenResponse is returned on successful login.
type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Operator    *domain.Operator `json:"operator"`
}

// Login authenticates an operator and issues a short-lived access token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	op, err := s.repo.FindOperatorByName(ctx, req.Name)
	if err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	if !op.IsActive {
		return nil, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.SecretHash), []byte(req.Secret)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.repo.TouchOperator(ctx, op.ID, now); err != nil {
		return nil, errors.Wrap(err, "failed to record login")
	}
	op.LastUsedAt = &now

	return s.generateToken(op)
}

// RegisterOperator creates a new operator. Only the current owner may call it.
func (s *Service) RegisterOperator(ctx context.Context, callerID uuid.UUID, req *RegisterOperatorRequest) (*domain.Operator, error) {
	if !s.IsOwner(ctx, callerID) {
		return nil, errors.ErrUnauthorized
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash secret")
	}

	op := &domain.Operator{
		ID:         uuid.New(),
		Name:       req.Name,
		Role:       req.Role,
		SecretHash: string(secretHash),
		IsActive:   true,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.CreateOperator(ctx, op); err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, errors.ErrOperatorExists
		}
		return nil, errors.Wrap(err, "failed to create operator")
	}
	return op, nil
}

// Bootstrap seeds the first owner operator and the authority row on an empty
// database. It is a no-op once any operator exists.
func (s *Service) Bootstrap(ctx context.Context, name, secret string) error {
	count, err := s.repo.CountOperators(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to count operators")
	}
	if count > 0 {
		return nil
	}
	if name == "" || secret == "" {
		return errors.Wrap(errors.ErrInvalidInput, "bootstrap operator name and secret required")
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash secret")
	}

	now := time.Now()
	op := &domain.Operator{
		ID:         uuid.New(),
		Name:       name,
		Role:       domain.OperatorRoleOwner,
		SecretHash: string(secretHash),
		IsActive:   true,
		CreatedAt:  now,
	}
	if err := s.repo.CreateOperator(ctx, op); err != nil {
		return errors.Wrap(err, "failed to create bootstrap operator")
	}

	a := &domain.Authority{
		Owner:        op.ID,
		Manager:      op.ID,
		FeeRecipient: op.ID,
		UpdatedAt:    now,
	}
	if err := s.repo.SaveAuthority(ctx, a); err != nil {
		return errors.Wrap(err, "failed to seed authority")
	}
	return nil
}

// Operator looks up one operator by id.
func (s *Service) Operator(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	op, err := s.repo.FindOperatorByID(ctx, id)
	if err != nil {
		return nil, errors.ErrOperatorNotFound
	}
	return op, nil
}

func (s *Service) generateToken(op *domain.Operator) (*TokenResponse, error) {
	expiresAt := time.Now().Add(s.jwtExpiry)

	claims := jwt.MapClaims{
		"operator_id": op.ID.String(),
		"name":        op.Name,
		"role":        string(op.Role),
		"exp":         expiresAt.Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign token")
	}

	return &TokenResponse{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		Operator:    op,
	}, nil
}

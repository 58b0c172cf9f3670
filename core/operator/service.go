package operator

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
)

var (
	ErrNotFound           = errors.New("operator not found")
	ErrEmailExists        = errors.New("an operator with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeactivated        = errors.New("account deactivated")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when another operator than excluded uses email.
		CheckEmailUniqueness(ctx context.Context, email string, excluded ...string) error
		CreateOperator(ctx context.Context, op Operator) (Operator, error)
		QueryAllOperators(ctx context.Context, ordering ...core.DBOrdering) ([]Operator, error)
		GetOperatorByID(ctx context.Context, id string) (Operator, error)
		GetOperatorByEmail(ctx context.Context, email string) (Operator, error)
		UpdateOperator(ctx context.Context, op Operator) (Operator, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, excluded ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excluded...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, no NewOperator) (Operator, error) {
	no.Clean()
	if err := svc.validate.Struct(no); err != nil {
		return Operator{}, err
	}
	if err := svc.checkUniqueness(ctx, no.Email); err != nil {
		return Operator{}, err
	}

	now := time.Now().UTC()
	op := Operator{
		ID:        uuid.New().String(),
		Name:      no.Name,
		Email:     no.Email,
		IsActive:  true,
		Roles:     no.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := op.SetPassword(no.Password); err != nil {
		return Operator{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateOperator(ctx, op)
}

func (svc *Service) QueryAll(ctx context.Context, ordering ...core.DBOrdering) ([]Operator, error) {
	return svc.repo.QueryAllOperators(ctx, ordering...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Operator, error) {
	return svc.repo.GetOperatorByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Operator, error) {
	return svc.repo.GetOperatorByEmail(ctx, core.NormalizeEmail(email))
}

// Authenticate checks creds and records the login.
func (svc *Service) Authenticate(ctx context.Context, creds Credentials) (Operator, error) {
	if err := creds.Validate(svc.validate); err != nil {
		return Operator{}, err
	}
	op, err := svc.repo.GetOperatorByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Operator{}, ErrInvalidCredentials
		}
		return Operator{}, errors.Wrap(err, "finding operator by email")
	}
	if err = op.CheckPassword(creds.Password); err != nil {
		return Operator{}, ErrInvalidCredentials
	}
	if !op.IsActive {
		return Operator{}, ErrDeactivated
	}

	op.LastLogin = time.Now().UTC()
	if err = svc.repo.SetLastLogin(ctx, op.ID, op.LastLogin); err != nil {
		return Operator{}, errors.Wrap(err, "setting last login")
	}
	return op, nil
}

func (svc *Service) Update(ctx context.Context, id string, uo UpdateOperator) (Operator, error) {
	if err := svc.validate.Struct(uo); err != nil {
		return Operator{}, err
	}
	op, err := svc.repo.GetOperatorByID(ctx, id)
	if err != nil {
		return Operator{}, err
	}
	if name := core.CleanString(uo.Name); name != "" {
		op.Name = name
	}
	if uo.IsActive != nil {
		op.IsActive = *uo.IsActive
	}
	if uo.Roles != nil {
		op.Roles = uo.Roles
	}
	op.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateOperator(ctx, op)
}

// ResetPassword sets a new password on the operator owning pr.Email.
func (svc *Service) ResetPassword(ctx context.Context, pr PasswordReset) error {
	pr.Email = core.NormalizeEmail(pr.Email)
	op, err := svc.repo.GetOperatorByEmail(ctx, pr.Email)
	if err != nil {
		return err
	}
	pr.Name = op.Name
	if err = svc.validate.Struct(pr); err != nil {
		return err
	}

	if err = op.SetPassword(pr.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	op.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateOperator(ctx, op)
	return err
}

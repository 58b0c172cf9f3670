package operator

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/edtools/edcore/core"
)

// Roles
const (
	RoleAdmin     = "admin"
	RoleBursar    = "bursar"    // fees & payments
	RoleRegistrar = "registrar" // LMS sync & identity provisioning
)

var (
	AllRoles = []string{RoleAdmin, RoleBursar, RoleRegistrar}

	Roles = []Role{
		{Name: "Bursar", Value: RoleBursar},
		{Name: "Registrar", Value: RoleRegistrar},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Operator is a back-office account of the API.
type Operator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (op *Operator) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	op.PasswordHash = hash
	return nil
}

func (op *Operator) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(op.PasswordHash, []byte(pwd))
}

func (op *Operator) IsAdmin() bool {
	return lo.Contains(op.Roles, RoleAdmin)
}

// HasAnyRole reports whether op holds one of roles. Admins hold every role.
func (op *Operator) HasAnyRole(roles ...string) bool {
	if op.IsAdmin() || len(roles) == 0 {
		return true
	}
	return len(lo.Intersect(op.Roles, roles)) > 0
}

// LogPerson identifies op in error reports.
func (op *Operator) LogPerson() core.LogPerson {
	return core.LogPerson{ID: op.ID, Username: op.Name, Email: op.Email}
}

// NewOperator contains information needed to create a new Operator.
type NewOperator struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,allroles"`
}

func (no *NewOperator) Clean() {
	no.Name = core.CleanString(no.Name)
	no.Email = core.NormalizeEmail(no.Email)
	no.Roles = lo.Uniq(lo.Compact(no.Roles))
}

// UpdateOperator defines what may be changed on an existing Operator.
type UpdateOperator struct {
	Name     string   `json:"name"`
	IsActive *bool    `json:"is_active"`
	Roles    []string `json:"roles" validate:"omitempty,allroles"`
}

type PasswordReset struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	// Name is the operator's name, checked by the password policy.
	Name string `json:"-"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.NormalizeEmail(c.Email)
	return validate.Struct(c)
}

package identity

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edtools/edcore/core"
)

const (
	// DefaultSKU is the Office 365 licence assigned to provisioned students.
	DefaultSKU = "6fd2c87f-b296-42f0-b197-1e91e994b900"

	// TempPasswordLength is the length of generated temporary passwords.
	TempPasswordLength = 12

	credentialsTemplate = "credentials"
	credentialsSubject  = "Bienvenido - Tus credenciales para el Portal del Estudiante"
)

// Applicant is a prospective student to provision an institutional account for.
type Applicant struct {
	FirstName     string `json:"first_name" validate:"required"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	DisplayName   string `json:"display_name"`
	PersonalEmail string `json:"personal_email" validate:"omitempty,email"`
	// Email is used for the credentials when there is no personal email.
	Email string `json:"email" validate:"omitempty,email"`
}

func (a *Applicant) Validate(validate *validator.Validate) error {
	a.FirstName = core.CleanString(a.FirstName)
	a.MiddleName = core.CleanString(a.MiddleName)
	a.LastName = core.CleanString(a.LastName)
	a.DisplayName = core.CleanString(a.DisplayName)
	a.PersonalEmail = core.NormalizeEmail(a.PersonalEmail)
	a.Email = core.NormalizeEmail(a.Email)
	return validate.Struct(a)
}

func (a Applicant) displayName() string {
	if name := core.CleanString(a.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(core.CleanString(a.FirstName) + " " + core.CleanString(a.LastName))
}

// NewDirectoryUser is the account created in the identity provider.
type NewDirectoryUser struct {
	UserPrincipalName string
	DisplayName       string
	GivenName         string
	Surname           string
	Password          string
}

// MailNickname is the local part of the principal name.
func (u NewDirectoryUser) MailNickname() string {
	return strings.SplitN(u.UserPrincipalName, "@", 2)[0]
}

type Provisioned struct {
	InstitutionalEmail string `json:"institutional_email"`
	UserID             string `json:"user_id"`
	LicenseSKU         string `json:"license_sku"`
	Sandbox            bool   `json:"sandbox"`
	CredentialsSentTo  string `json:"credentials_sent_to"`
	Password           string `json:"-"`
}

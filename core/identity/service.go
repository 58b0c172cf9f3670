package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
)

var ErrProvisioningDisabled = errors.New("identity provisioning is disabled")

// Directory is the identity provider holding institutional accounts.
type Directory interface {
	// CreateUser returns the id of the new account, or of the existing one with the same
	// principal name. Either way the account's password is usr.Password afterwards.
	CreateUser(ctx context.Context, usr NewDirectoryUser) (string, error)
	// AssignLicense succeeds when the licence is already assigned.
	AssignLicense(ctx context.Context, userID, skuID string) error
}

type Service struct {
	dir       Directory
	mailSvc   core.EmailService
	logger    core.Logger
	enabled   bool
	sandbox   bool
	domain    string
	skuID     string
	portalURL string
}

func NewService(dir Directory, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	sku := conf.Azure.SKUID
	if sku == "" {
		sku = DefaultSKU
	}
	return &Service{
		dir:       dir,
		mailSvc:   mailSvc,
		logger:    logger,
		enabled:   conf.Azure.Enabled,
		sandbox:   conf.Azure.Sandbox,
		domain:    conf.Azure.Domain,
		skuID:     sku,
		portalURL: strings.TrimRight(conf.FrontendBaseURL, "/") + "/student-portal",
	}
}

// Provision creates the institutional account of an applicant, assigns its licence and
// sends the credentials to the applicant's personal email. In sandbox mode the directory
// is not called and a fake id is returned.
func (svc *Service) Provision(ctx context.Context, a Applicant) (Provisioned, error) {
	if !svc.enabled {
		return Provisioned{}, ErrProvisioningDisabled
	}
	recipient := core.NormalizeEmail(a.PersonalEmail)
	if recipient == "" {
		recipient = core.NormalizeEmail(a.Email)
	}
	if recipient == "" {
		return Provisioned{}, core.NewDataError("personal_email", "a personal email is required to send the credentials")
	}

	email := InstitutionalEmail(a.FirstName, a.MiddleName, a.LastName, svc.domain)
	password, err := TempPassword(TempPasswordLength)
	if err != nil {
		return Provisioned{}, err
	}
	res := Provisioned{
		InstitutionalEmail: email,
		LicenseSKU:         svc.skuID,
		Sandbox:            svc.sandbox,
		CredentialsSentTo:  recipient,
		Password:           password,
	}

	if svc.sandbox {
		res.UserID = "sandbox-" + strings.Replace(email, "@", "-at-", 1)
		svc.logger.Info("identity provisioning simulated", map[string]interface{}{"email": email, "user_id": res.UserID})
	} else {
		res.UserID, err = svc.dir.CreateUser(ctx, NewDirectoryUser{
			UserPrincipalName: email,
			DisplayName:       a.displayName(),
			GivenName:         core.CleanString(a.FirstName),
			Surname:           core.CleanString(a.LastName),
			Password:          password,
		})
		if err != nil {
			return Provisioned{}, errors.Wrapf(err, "creating directory user %q", email)
		}
		if err = svc.dir.AssignLicense(ctx, res.UserID, svc.skuID); err != nil {
			return Provisioned{}, errors.Wrapf(err, "assigning licence to %q", email)
		}
		svc.logger.Info("identity provisioned", map[string]interface{}{"email": email, "user_id": res.UserID})
	}

	svc.sendCredentials(a, res)
	return res, nil
}

func (svc *Service) sendCredentials(a Applicant, res Provisioned) {
	svc.logger.Info("identity sending credentials", map[string]interface{}{"to": res.CredentialsSentTo})
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: a.displayName(), Address: res.CredentialsSentTo}},
		Subject:      credentialsSubject,
		TemplateName: credentialsTemplate,
		TemplateData: map[string]interface{}{
			"StudentName":        a.displayName(),
			"InstitutionalEmail": res.InstitutionalEmail,
			"Password":           res.Password,
			"PortalURL":          svc.portalURL,
		},
	})
}

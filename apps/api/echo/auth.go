package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/operator"
)

const (
	tokenContextKey    = "operatorToken"
	operatorContextKey = "operator"
	tokenAudience      = "BackOffice"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// LogPerson identifies the token holder in error reports.
func (c Claims) LogPerson() core.LogPerson {
	return core.LogPerson{ID: c.Subject, Username: c.Name, Email: c.Email}
}

func (c Claims) HasAnyRole(roles ...string) bool {
	op := operator.Operator{Roles: c.Roles}
	return op.HasAnyRole(roles...)
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of op, expiring after conf.Server.JWTExpirationDelta.
// origIat is the issue time of the first token of a refresh chain.
func NewClaims(op operator.Operator, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   op.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         op.Name,
		Email:        op.Email,
		Roles:        op.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextOperator(ctx echo.Context, svc *operator.Service, clms ...Claims) (operator.Operator, error) {
	if op, ok := ctx.Get(operatorContextKey).(operator.Operator); ok {
		return op, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else if claims, err = getContextClaims(ctx); err != nil {
		return operator.Operator{}, err
	}

	op, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if errors.Cause(err) == operator.ErrNotFound {
		return operator.Operator{}, errUnauthorized
	} else if err != nil {
		return operator.Operator{}, errors.Wrap(err, "finding operator by ID")
	}
	ctx.Set(operatorContextKey, op)
	return op, nil
}

func refreshToken(ctx echo.Context, svc *operator.Service, conf *core.Config) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	op, err := getContextOperator(ctx, svc, claims)
	if err != nil {
		return "", err
	}
	if !op.IsActive {
		return "", errAccountDeactivated
	}

	// the refresh window starts at the first token of the chain
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	return GenerateToken(NewClaims(op, conf, claims.OrigIssuedAt), conf)
}

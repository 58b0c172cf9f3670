package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/identity"
)

const (
	system = "graph"
	scope  = "https://graph.microsoft.com/.default"
)

// Client provisions accounts through Microsoft Graph with an app-only token.
type Client struct {
	baseURL string
	http    *rest.Client
	logger  core.Logger
}

var _ identity.Directory = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) (*Client, error) {
	az := conf.Azure
	required := []struct{ key, val string }{
		{"azure.tenantID", az.TenantID},
		{"azure.clientID", az.ClientID},
		{"azure.clientSecret", az.ClientSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return nil, core.NewConfigError(r.key)
		}
	}
	timeout := az.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     az.ClientID,
		ClientSecret: az.ClientSecret,
		TokenURL:     strings.TrimRight(az.LoginURL, "/") + "/" + url.PathEscape(az.TenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{scope},
	}
	// the token endpoint is called with this client
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(az.GraphURL, "/"),
		http:    &rest.Client{HTTPClient: httpClient},
		logger:  logger,
	}, nil
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, function string, method rest.Method, path string, payload, out interface{}) error {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encoding graph payload")
		}
		req.Body = body
	}

	res, err := c.http.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "graph %s", function)
	}
	if res.StatusCode >= http.StatusBadRequest {
		var gerr graphError
		_ = json.Unmarshal([]byte(res.Body), &gerr)
		msg := gerr.Error.Message
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &core.RemoteError{System: system, Function: function, Status: res.StatusCode, Code: gerr.Error.Code, Message: msg}
	}
	if out != nil && res.Body != "" {
		if err = json.Unmarshal([]byte(res.Body), out); err != nil {
			return errors.Wrapf(err, "decoding graph %s response", function)
		}
	}
	return nil
}

func isBadRequestWith(err error, needle string) bool {
	rerr, ok := core.AsRemoteError(err)
	return ok && rerr.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(rerr.Message), needle)
}

type user struct {
	ID string `json:"id"`
}

func passwordProfile(pwd string) map[string]interface{} {
	return map[string]interface{}{
		"forceChangePasswordNextSignIn": true,
		"password":                      pwd,
	}
}

// CreateUser creates the account, or adopts the account already holding its principal
// name. An adopted account gets usr.Password so the credentials sent out work.
func (c *Client) CreateUser(ctx context.Context, usr identity.NewDirectoryUser) (string, error) {
	payload := map[string]interface{}{
		"accountEnabled":    true,
		"displayName":       usr.DisplayName,
		"mailNickname":      usr.MailNickname(),
		"userPrincipalName": usr.UserPrincipalName,
		"givenName":         usr.GivenName,
		"surname":           usr.Surname,
		"passwordProfile":   passwordProfile(usr.Password),
	}

	var created user
	err := c.do(ctx, "createUser", rest.Post, "/users", payload, &created)
	if err == nil {
		return created.ID, nil
	}
	if !isBadRequestWith(err, "already exists") {
		return "", err
	}

	c.logger.Info("directory user already exists", map[string]interface{}{"upn": usr.UserPrincipalName})
	var existing user
	if err = c.do(ctx, "getUser", rest.Get, "/users/"+url.PathEscape(usr.UserPrincipalName), nil, &existing); err != nil {
		return "", err
	}
	reset := map[string]interface{}{"passwordProfile": passwordProfile(usr.Password)}
	if err = c.do(ctx, "resetPassword", rest.Patch, "/users/"+url.PathEscape(existing.ID), reset, nil); err != nil {
		return "", err
	}
	return existing.ID, nil
}

func (c *Client) AssignLicense(ctx context.Context, userID, skuID string) error {
	payload := map[string]interface{}{
		"addLicenses":    []map[string]interface{}{{"skuId": skuID, "disabledPlans": []string{}}},
		"removeLicenses": []string{},
	}
	err := c.do(ctx, "assignLicense", rest.Post, "/users/"+url.PathEscape(userID)+"/assignLicense", payload, nil)
	if err != nil && isBadRequestWith(err, "already assigned") {
		return nil
	}
	return err
}

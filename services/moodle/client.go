package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/lms"
)

const system = "moodle"

// Client calls the Moodle web services REST endpoint.
type Client struct {
	url         string
	token       string
	timeout     time.Duration
	bulkTimeout time.Duration
	http        *rest.Client
	logger      core.Logger
}

var _ lms.Client = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) (*Client, error) {
	if conf.Moodle.URL == "" {
		return nil, core.NewConfigError("moodle.url")
	}
	if conf.Moodle.Token == "" {
		return nil, core.NewConfigError("moodle.token")
	}
	return &Client{
		url:         conf.Moodle.URL,
		token:       conf.Moodle.Token,
		timeout:     conf.Moodle.Timeout,
		bulkTimeout: conf.Moodle.BulkTimeout,
		http:        &rest.Client{HTTPClient: &http.Client{}},
		logger:      logger,
	}, nil
}

// exception is the body of a rejected call.
type exception struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call posts the form-encoded params to wsfunction and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, timeout time.Duration, wsfunction string, params url.Values, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", wsfunction)
	form.Set("moodlewsrestformat", "json")

	res, err := c.http.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.url,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	})
	if err != nil {
		return errors.Wrapf(err, "moodle %s", wsfunction)
	}

	body := bytes.TrimSpace([]byte(res.Body))
	if len(body) > 0 && body[0] == '{' {
		var exc exception
		if err = json.Unmarshal(body, &exc); err == nil && exc.Exception != "" {
			return &core.RemoteError{System: system, Function: wsfunction, Status: res.StatusCode, Code: exc.ErrorCode, Message: exc.Message}
		}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &core.RemoteError{System: system, Function: wsfunction, Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	}
	if out == nil || len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		c.logger.Error("moodle non-JSON response", map[string]interface{}{"function": wsfunction, "body": res.Body})
		return &core.RemoteError{System: system, Function: wsfunction, Status: res.StatusCode, Message: "non-JSON response"}
	}
	return nil
}

type created struct {
	ID int64 `json:"id"`
}

func firstID(function string, items []created) (int64, error) {
	if len(items) == 0 || items[0].ID == 0 {
		return 0, &core.RemoteError{System: system, Function: function, Message: "no id in response"}
	}
	return items[0].ID, nil
}

func (c *Client) Categories(ctx context.Context) ([]lms.Category, error) {
	var cats []lms.Category
	err := c.call(ctx, c.timeout, "core_course_get_categories", nil, &cats)
	return cats, err
}

func (c *Client) CreateCategory(ctx context.Context, cat lms.NewCategory) (int64, error) {
	params := url.Values{
		"categories[0][name]":     {cat.Name},
		"categories[0][idnumber]": {cat.IDNumber},
		"categories[0][parent]":   {strconv.FormatInt(cat.Parent, 10)},
	}
	var res []created
	if err := c.call(ctx, c.timeout, "core_course_create_categories", params, &res); err != nil {
		return 0, err
	}
	return firstID("core_course_create_categories", res)
}

func (c *Client) Courses(ctx context.Context) ([]lms.Course, error) {
	var courses []lms.Course
	err := c.call(ctx, c.timeout, "core_course_get_courses", nil, &courses)
	return courses, err
}

func (c *Client) CreateCourse(ctx context.Context, crs lms.NewCourse) (int64, error) {
	params := url.Values{
		"courses[0][fullname]":   {crs.FullName},
		"courses[0][shortname]":  {crs.ShortName},
		"courses[0][categoryid]": {strconv.FormatInt(crs.CategoryID, 10)},
		"courses[0][idnumber]":   {crs.IDNumber},
	}
	if !crs.StartDate.IsZero() {
		params.Set("courses[0][startdate]", strconv.FormatInt(crs.StartDate.Unix(), 10))
	}
	if !crs.EndDate.IsZero() {
		params.Set("courses[0][enddate]", strconv.FormatInt(crs.EndDate.Unix(), 10))
	}
	var res []created
	if err := c.call(ctx, c.bulkTimeout, "core_course_create_courses", params, &res); err != nil {
		return 0, err
	}
	return firstID("core_course_create_courses", res)
}

func (c *Client) UserByEmail(ctx context.Context, email string) (lms.User, error) {
	params := url.Values{
		"criteria[0][key]":   {"email"},
		"criteria[0][value]": {email},
	}
	var res struct {
		Users []lms.User `json:"users"`
	}
	if err := c.call(ctx, c.timeout, "core_user_get_users", params, &res); err != nil {
		return lms.User{}, err
	}
	if len(res.Users) == 0 {
		return lms.User{}, lms.ErrUserNotFound
	}
	return res.Users[0], nil
}

func (c *Client) CreateUser(ctx context.Context, usr lms.NewUser) (int64, error) {
	params := url.Values{
		"users[0][username]":   {usr.Username},
		"users[0][auth]":       {usr.Auth},
		"users[0][firstname]":  {usr.FirstName},
		"users[0][lastname]":   {usr.LastName},
		"users[0][email]":      {usr.Email},
		"users[0][idnumber]":   {usr.IDNumber},
		"users[0][lang]":       {"es"},
		"users[0][timezone]":   {"99"},
		"users[0][mailformat]": {"1"},
	}
	if usr.Auth == "manual" {
		params.Set("users[0][createpassword]", "1")
	}
	var res []created
	if err := c.call(ctx, c.timeout, "core_user_create_users", params, &res); err != nil {
		return 0, err
	}
	return firstID("core_user_create_users", res)
}

func (c *Client) UpdateUserIDNumber(ctx context.Context, userID int64, idnumber string) error {
	params := url.Values{
		"users[0][id]":       {strconv.FormatInt(userID, 10)},
		"users[0][idnumber]": {idnumber},
	}
	return c.call(ctx, c.timeout, "core_user_update_users", params, nil)
}

func (c *Client) Enrol(ctx context.Context, enrol lms.Enrolment) error {
	params := url.Values{
		"enrolments[0][roleid]":   {strconv.FormatInt(enrol.RoleID, 10)},
		"enrolments[0][userid]":   {strconv.FormatInt(enrol.UserID, 10)},
		"enrolments[0][courseid]": {strconv.FormatInt(enrol.CourseID, 10)},
	}
	return c.call(ctx, c.timeout, "enrol_manual_enrol_users", params, nil)
}

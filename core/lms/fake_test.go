package lms

import (
	"context"
	"strings"
	"sync"

	"github.com/edtools/edcore/core"
)

// fakeClient is an in-memory LMS enforcing idnumber uniqueness like the remote one.
type fakeClient struct {
	mu         sync.Mutex
	nextID     int64
	categories []Category
	courses    []Course
	users      []User
	enrolments map[[2]int64]bool
	calls      map[string]int

	// fail makes the named call return the error.
	fail map[string]error
	// hidden records are created without being listed until the first duplicate
	// rejection, simulating a concurrent creation.
	hiddenCategory *Category
	hiddenCourse   *Course
	hiddenUser     *User
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nextID:     100,
		enrolments: make(map[[2]int64]bool),
		calls:      make(map[string]int),
		fail:       make(map[string]error),
	}
}

func remoteErr(fn, code, msg string) error {
	return &core.RemoteError{System: "moodle", Function: fn, Code: code, Message: msg}
}

func (c *fakeClient) call(name string) error {
	c.calls[name]++
	return c.fail[name]
}

func (c *fakeClient) Categories(_ context.Context) ([]Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("Categories"); err != nil {
		return nil, err
	}
	return append([]Category(nil), c.categories...), nil
}

func (c *fakeClient) CreateCategory(_ context.Context, cat NewCategory) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("CreateCategory"); err != nil {
		return 0, err
	}
	if c.hiddenCategory != nil && c.hiddenCategory.IDNumber == cat.IDNumber {
		c.categories = append(c.categories, *c.hiddenCategory)
		c.hiddenCategory = nil
	}
	for _, existing := range c.categories {
		if existing.IDNumber == cat.IDNumber {
			return 0, remoteErr("core_course_create_categories", "categoryidnumbertaken", "ID number is already used for another category")
		}
	}
	c.nextID++
	c.categories = append(c.categories, Category{ID: c.nextID, Name: cat.Name, IDNumber: cat.IDNumber, Parent: cat.Parent})
	return c.nextID, nil
}

func (c *fakeClient) Courses(_ context.Context) ([]Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("Courses"); err != nil {
		return nil, err
	}
	return append([]Course(nil), c.courses...), nil
}

func (c *fakeClient) CreateCourse(_ context.Context, crs NewCourse) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("CreateCourse"); err != nil {
		return 0, err
	}
	if c.hiddenCourse != nil && c.hiddenCourse.IDNumber == crs.IDNumber {
		c.courses = append(c.courses, *c.hiddenCourse)
		c.hiddenCourse = nil
	}
	for _, existing := range c.courses {
		if existing.IDNumber == crs.IDNumber {
			return 0, remoteErr("core_course_create_courses", "courseidnumbertaken", "ID number is already used in course")
		}
		if existing.ShortName == crs.ShortName {
			return 0, remoteErr("core_course_create_courses", "shortnametaken", "Short name is already used for another course")
		}
	}
	c.nextID++
	c.courses = append(c.courses, Course{
		ID:         c.nextID,
		CategoryID: crs.CategoryID,
		FullName:   crs.FullName,
		ShortName:  crs.ShortName,
		IDNumber:   crs.IDNumber,
	})
	return c.nextID, nil
}

func (c *fakeClient) UserByEmail(_ context.Context, email string) (User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("UserByEmail"); err != nil {
		return User{}, err
	}
	for _, usr := range c.users {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (c *fakeClient) CreateUser(_ context.Context, nu NewUser) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("CreateUser"); err != nil {
		return 0, err
	}
	if c.hiddenUser != nil && c.hiddenUser.Email == nu.Email {
		c.users = append(c.users, *c.hiddenUser)
		c.hiddenUser = nil
	}
	for _, existing := range c.users {
		if existing.Username == nu.Username {
			return 0, remoteErr("core_user_create_users", "invalidparameter", "Username already exists: "+nu.Username)
		}
	}
	c.nextID++
	c.users = append(c.users, User{
		ID:        c.nextID,
		Username:  nu.Username,
		Email:     nu.Email,
		IDNumber:  nu.IDNumber,
		Auth:      nu.Auth,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
	})
	return c.nextID, nil
}

func (c *fakeClient) UpdateUserIDNumber(_ context.Context, userID int64, idnumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("UpdateUserIDNumber"); err != nil {
		return err
	}
	for i := range c.users {
		if c.users[i].ID == userID {
			c.users[i].IDNumber = idnumber
			return nil
		}
	}
	return remoteErr("core_user_update_users", "invaliduser", "invalid user")
}

func (c *fakeClient) Enrol(_ context.Context, enrol Enrolment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("Enrol"); err != nil {
		return err
	}
	key := [2]int64{enrol.UserID, enrol.CourseID}
	if c.enrolments[key] {
		return remoteErr("enrol_manual_enrol_users", "", "User is already enrolled")
	}
	c.enrolments[key] = true
	return nil
}

package lms

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
)

// Sync steps, in execution order.
const (
	StepUser   = "user"
	StepYear   = "year"
	StepTerm   = "term"
	StepCourse = "course"
	StepEnrol  = "enrol"
)

// StepError reports the sync step at which SyncEnrollment aborted.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sync step %s: %v", e.Step, e.Err)
}

func (e *StepError) Cause() error  { return e.Err }
func (e *StepError) Unwrap() error { return e.Err }

type Service struct {
	client        Client
	logger        core.Logger
	studentRoleID int64
}

func NewService(client Client, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		client:        client,
		logger:        logger,
		studentRoleID: int64(conf.Moodle.StudentRoleID),
	}
}

// EnsureCategory returns the id of the category with idnumber under parent, creating it
// when missing. A category with idnumber under another parent is a conflict.
func (svc *Service) EnsureCategory(ctx context.Context, name, idnumber string, parent int64) (int64, error) {
	idnumber = core.CleanString(idnumber)
	if idnumber == "" {
		return 0, core.NewDataError("idnumber", "category idnumber is required")
	}

	if id, found, err := svc.findCategory(ctx, idnumber, parent); err != nil || found {
		return id, err
	}

	id, err := svc.client.CreateCategory(ctx, NewCategory{Name: core.CleanString(name), IDNumber: idnumber, Parent: parent})
	if err == nil {
		svc.logger.Info("lms category created", map[string]interface{}{"id": id, "idnumber": idnumber, "parent": parent})
		return id, nil
	}
	if !IsDuplicate(err) {
		return 0, errors.Wrapf(err, "creating category %q", idnumber)
	}

	// created concurrently: adopt it
	id, found, ferr := svc.findCategory(ctx, idnumber, parent)
	if ferr != nil {
		return 0, ferr
	}
	if !found {
		return 0, core.NewConflictError("category", idnumber, "reported as duplicate but not found")
	}
	return id, nil
}

func (svc *Service) findCategory(ctx context.Context, idnumber string, parent int64) (int64, bool, error) {
	cats, err := svc.client.Categories(ctx)
	if err != nil {
		return 0, false, errors.Wrap(err, "listing categories")
	}
	for _, cat := range cats {
		if cat.IDNumber != idnumber {
			continue
		}
		if cat.Parent != parent {
			return 0, false, core.NewConflictError("category", idnumber,
				fmt.Sprintf("exists under parent %d, expected %d", cat.Parent, parent))
		}
		return cat.ID, true, nil
	}
	return 0, false, nil
}

// EnsureYearCategory returns the top-level category of an academic year.
func (svc *Service) EnsureYearCategory(ctx context.Context, year string) (int64, error) {
	year = core.CleanString(year)
	if year == "" {
		return 0, core.NewDataError("year", "academic year is required")
	}
	return svc.EnsureCategory(ctx, year, year, 0)
}

// EnsureTermCategory returns the category of term under its year category.
func (svc *Service) EnsureTermCategory(ctx context.Context, term Term, yearID int64) (int64, error) {
	if term.StartDate.IsZero() {
		return 0, core.NewDataError("term.start_date", "term start date is required")
	}
	return svc.EnsureCategory(ctx, term.CategoryName(), core.CleanString(term.Key), yearID)
}

// EnsureCourse returns the id of the offering of course in term, creating it in the term
// category when missing.
func (svc *Service) EnsureCourse(ctx context.Context, term Term, termCategoryID int64, course CourseRef) (int64, error) {
	term.Key = core.CleanString(term.Key)
	course.Name = core.CleanString(course.Name)
	course.Code = core.CleanString(course.Code)
	if course.Name == "" {
		return 0, core.NewDataError("course.name", "course name is required")
	}
	if term.Key == "" {
		return 0, core.NewDataError("term.key", "term key is required")
	}
	idnumber := course.IDNumber(term)

	if id, found, err := svc.findCourse(ctx, idnumber, termCategoryID); err != nil || found {
		return id, err
	}

	id, err := svc.client.CreateCourse(ctx, NewCourse{
		CategoryID: termCategoryID,
		FullName:   course.Name,
		ShortName:  course.ShortName(term),
		IDNumber:   idnumber,
		StartDate:  term.StartDate,
		EndDate:    term.EndDate,
	})
	if err == nil {
		svc.logger.Info("lms course created", map[string]interface{}{"id": id, "idnumber": idnumber, "category": termCategoryID})
		return id, nil
	}
	if !IsDuplicate(err) {
		return 0, errors.Wrapf(err, "creating course %q", idnumber)
	}

	id, found, ferr := svc.findCourse(ctx, idnumber, termCategoryID)
	if ferr != nil {
		return 0, ferr
	}
	if !found {
		return 0, core.NewConflictError("course", idnumber, "reported as duplicate but not found")
	}
	return id, nil
}

func (svc *Service) findCourse(ctx context.Context, idnumber string, categoryID int64) (int64, bool, error) {
	courses, err := svc.client.Courses(ctx)
	if err != nil {
		return 0, false, errors.Wrap(err, "listing courses")
	}
	for _, crs := range courses {
		if crs.IDNumber != idnumber {
			continue
		}
		if crs.CategoryID != categoryID {
			return 0, false, core.NewConflictError("course", idnumber,
				fmt.Sprintf("exists in category %d, expected %d", crs.CategoryID, categoryID))
		}
		return crs.ID, true, nil
	}
	return 0, false, nil
}

// EnsureUser returns the LMS account of p, matched by email, creating it when missing.
// The account idnumber is kept in line with the person's internal id.
func (svc *Service) EnsureUser(ctx context.Context, p Person) (User, error) {
	email := core.NormalizeEmail(p.Email)
	if email == "" {
		return User{}, core.NewDataError("email", "student email is required")
	}
	idnumber := core.CleanString(p.InternalID)
	if idnumber == "" {
		return User{}, core.NewDataError("internal_id", "student internal id is required")
	}

	usr, err := svc.client.UserByEmail(ctx, email)
	switch {
	case err == nil:
		return svc.reconcileIDNumber(ctx, usr, idnumber)
	case errors.Cause(err) != ErrUserNotFound:
		return User{}, errors.Wrapf(err, "looking up user %q", email)
	}

	nu := NewUser{
		Username:  email,
		Auth:      AuthOIDC,
		FirstName: p.GivenNames(),
		LastName:  core.CleanString(p.LastName),
		Email:     email,
		IDNumber:  idnumber,
	}
	id, err := svc.client.CreateUser(ctx, nu)
	if err != nil {
		if !IsDuplicate(err) {
			return User{}, errors.Wrapf(err, "creating user %q", email)
		}
		usr, lerr := svc.client.UserByEmail(ctx, email)
		if lerr != nil {
			return User{}, errors.Wrapf(lerr, "looking up duplicate user %q", email)
		}
		return svc.reconcileIDNumber(ctx, usr, idnumber)
	}
	svc.logger.Info("lms user created", map[string]interface{}{"id": id, "email": email})

	return User{
		ID:        id,
		Username:  nu.Username,
		Email:     nu.Email,
		IDNumber:  nu.IDNumber,
		Auth:      nu.Auth,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
	}, nil
}

func (svc *Service) reconcileIDNumber(ctx context.Context, usr User, idnumber string) (User, error) {
	if usr.IDNumber == idnumber {
		return usr, nil
	}
	if err := svc.client.UpdateUserIDNumber(ctx, usr.ID, idnumber); err != nil {
		return User{}, errors.Wrapf(err, "updating idnumber of user %d", usr.ID)
	}
	svc.logger.Info("lms user idnumber updated", map[string]interface{}{"id": usr.ID, "from": usr.IDNumber, "to": idnumber})
	usr.IDNumber = idnumber
	return usr, nil
}

// Enrol enrols userID in courseID as a student. An existing enrolment is success.
func (svc *Service) Enrol(ctx context.Context, userID, courseID int64) error {
	err := svc.client.Enrol(ctx, Enrolment{UserID: userID, CourseID: courseID, RoleID: svc.studentRoleID})
	if err != nil && !IsDuplicate(err) {
		return errors.Wrapf(err, "enrolling user %d in course %d", userID, courseID)
	}
	return nil
}

// SyncEnrollment mirrors an enrollment into the LMS: user, year category, term category,
// course and enrolment, in this order. It stops at the first failing step and returns the
// ids resolved so far along with a *StepError. Completed steps are not rolled back.
func (svc *Service) SyncEnrollment(ctx context.Context, req SyncRequest) (SyncResult, error) {
	var res SyncResult
	fields := map[string]interface{}{
		"student": req.Student.InternalID,
		"term":    req.Term.Key,
		"course":  req.Course.Name,
	}
	fail := func(step string, err error) (SyncResult, error) {
		svc.logger.Error("lms sync failed", err, map[string]interface{}{
			"student": req.Student.InternalID,
			"step":    step,
		})
		return res, &StepError{Step: step, Err: err}
	}

	usr, err := svc.EnsureUser(ctx, req.Student)
	if err != nil {
		return fail(StepUser, err)
	}
	res.UserID = usr.ID
	svc.logger.Debug("lms sync step done", map[string]interface{}{"step": StepUser, "id": res.UserID})

	if res.YearCategoryID, err = svc.EnsureYearCategory(ctx, req.Year); err != nil {
		return fail(StepYear, err)
	}
	svc.logger.Debug("lms sync step done", map[string]interface{}{"step": StepYear, "id": res.YearCategoryID})

	if res.TermCategoryID, err = svc.EnsureTermCategory(ctx, req.Term, res.YearCategoryID); err != nil {
		return fail(StepTerm, err)
	}
	svc.logger.Debug("lms sync step done", map[string]interface{}{"step": StepTerm, "id": res.TermCategoryID})

	if res.CourseID, err = svc.EnsureCourse(ctx, req.Term, res.TermCategoryID, req.Course); err != nil {
		return fail(StepCourse, err)
	}
	svc.logger.Debug("lms sync step done", map[string]interface{}{"step": StepCourse, "id": res.CourseID})

	if err = svc.Enrol(ctx, res.UserID, res.CourseID); err != nil {
		return fail(StepEnrol, err)
	}
	res.Enrolled = true

	fields["user_id"] = res.UserID
	fields["course_id"] = res.CourseID
	svc.logger.Info("lms enrollment synced", fields)
	return res, nil
}

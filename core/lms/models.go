package lms

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edtools/edcore/core"
)

// AuthOIDC is the authentication plugin of users created by the sync.
const AuthOIDC = "oidc"

type (
	Category struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		IDNumber string `json:"idnumber"`
		Parent   int64  `json:"parent"`
	}

	NewCategory struct {
		Name     string
		IDNumber string
		Parent   int64
	}

	Course struct {
		ID         int64  `json:"id"`
		CategoryID int64  `json:"categoryid"`
		FullName   string `json:"fullname"`
		ShortName  string `json:"shortname"`
		IDNumber   string `json:"idnumber"`
	}

	NewCourse struct {
		CategoryID int64
		FullName   string
		ShortName  string
		IDNumber   string
		StartDate  time.Time
		EndDate    time.Time // zero when the term has no end
	}

	User struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email"`
		IDNumber  string `json:"idnumber"`
		Auth      string `json:"auth"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
	}

	NewUser struct {
		Username  string
		Auth      string
		FirstName string
		LastName  string
		Email     string
		IDNumber  string
	}

	Enrolment struct {
		UserID   int64
		CourseID int64
		RoleID   int64
	}
)

// Person is a student as known by the school records.
type Person struct {
	InternalID    string `json:"internal_id" validate:"required"`
	FirstName     string `json:"first_name" validate:"required"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	PersonalEmail string `json:"personal_email" validate:"omitempty,email"`
}

// GivenNames joins the first and middle names.
func (p Person) GivenNames() string {
	return strings.TrimSpace(core.CleanString(p.FirstName) + " " + core.CleanString(p.MiddleName))
}

// Term is an academic period. Its Key (e.g. "2026-1") is the remote idnumber of its category.
type Term struct {
	Key       string    `json:"key" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date"`
}

// CategoryName is the start month of the term, formatted YYYYMM.
func (t Term) CategoryName() string {
	return t.StartDate.Format("200601")
}

type CourseRef struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// IDNumber is the remote dedup key of the course offering in term.
func (c CourseRef) IDNumber(term Term) string {
	return term.Key + "::" + c.Name
}

// ShortName is unique per term.
func (c CourseRef) ShortName(term Term) string {
	return c.Code + " " + term.Key
}

type SyncRequest struct {
	Student Person    `json:"student"`
	Year    string    `json:"year" validate:"required"`
	Term    Term      `json:"term"`
	Course  CourseRef `json:"course"`
}

func (r *SyncRequest) Validate(validate *validator.Validate) error {
	r.Student.Email = core.NormalizeEmail(r.Student.Email)
	r.Year = core.CleanString(r.Year)
	r.Term.Key = core.CleanString(r.Term.Key)
	r.Course.Name = core.CleanString(r.Course.Name)
	r.Course.Code = core.CleanString(r.Course.Code)
	return validate.Struct(r)
}

type SyncResult struct {
	UserID         int64 `json:"user_id"`
	YearCategoryID int64 `json:"year_category_id"`
	TermCategoryID int64 `json:"term_category_id"`
	CourseID       int64 `json:"course_id"`
	Enrolled       bool  `json:"enrolled"`
}

package orchestrators

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// dateLayout is the HTML date input format.
const dateLayout = "2006-01-02"

// FormError carries per-field messages for re-rendering a form.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// IsFormError reports whether err carries field messages, returning them.
func IsFormError(err error) (map[string]string, bool) {
	var fe *FormError
	if errors.As(err, &fe) {
		return fe.Fields, true
	}
	return nil, false
}

// NoticeForm is the submitted notice editor.
type NoticeForm struct {
	Title       string `validate:"required,max=200"`
	Content     string `validate:"required,max=20000"`
	Category    string `validate:"required,oneof=main department club"`
	Subcategory string `validate:"required_unless=Category main"`
	Priority    string `validate:"required,oneof=low medium high"`
	ExpiresAt   string `validate:"omitempty,datetime=2006-01-02"`
}

// NewNoticeForm returns the editor's initial values.
func NewNoticeForm(now time.Time) NoticeForm {
	return NoticeForm{
		Category:  string(notice.CategoryMain),
		Priority:  string(notice.PriorityMedium),
		ExpiresAt: now.Add(notice.DefaultExpiry).Format(dateLayout),
	}
}

// NoticeFormFrom fills the editor from an existing notice.
func NoticeFormFrom(n notice.Notice) NoticeForm {
	f := NoticeForm{
		Title:       n.Title,
		Content:     n.Content,
		Category:    string(n.Category),
		Subcategory: n.SubcategoryName(),
		Priority:    string(n.Priority),
	}
	if !n.ExpiresAt.IsZero() {
		f.ExpiresAt = n.ExpiresAt.Format(dateLayout)
	}
	return f
}

var noticeMessages = map[string]string{
	"Title.required":       "Title is required",
	"Title.max":            "Title must be at most 200 characters",
	"Content.required":     "Content is required",
	"Content.max":          "Content is too long",
	"Category.required":    "Please select a category",
	"Category.oneof":       "Please select a category",
	"Subcategory":          "Please select a subcategory",
	"Priority.required":    "Please select a priority",
	"Priority.oneof":       "Please select a priority",
	"ExpiresAt.datetime":   "Expiry date must be a valid date",
	"ExpiresAt.past":       "Expiry date must be in the future",
	"Subcategory.register": "Please select a subcategory",
}

// Draft validates the form against reg and converts it. A blank expiry
// defaults to now + notice.DefaultExpiry; a dated expiry lasts to the end of that day.
// PRE: reg lists the registered departments and clubs
// POST: returns a *FormError when any field is invalid
func (f NoticeForm) Draft(reg subcategory.Registry, now time.Time) (notice.Draft, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	f.Subcategory = strings.TrimSpace(f.Subcategory)

	fields := map[string]string{}
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return notice.Draft{}, err
		}
		for _, fe := range verrs {
			msg, ok := noticeMessages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = noticeMessages[fe.Field()]
			}
			if msg == "" {
				msg = fe.Field() + " is invalid"
			}
			if _, seen := fields[fe.Field()]; !seen {
				fields[fe.Field()] = msg
			}
		}
	}

	category := notice.Category(f.Category)
	if _, bad := fields["Subcategory"]; !bad && category != notice.CategoryMain && f.Subcategory != "" {
		if !reg.Contains(f.Category, f.Subcategory) {
			fields["Subcategory"] = noticeMessages["Subcategory.register"]
		}
	}

	expires := now.Add(notice.DefaultExpiry)
	if _, bad := fields["ExpiresAt"]; !bad && f.ExpiresAt != "" {
		day, _ := time.ParseInLocation(dateLayout, f.ExpiresAt, now.Location())
		expires = day.Add(24*time.Hour - time.Second)
		if !expires.After(now) {
			fields["ExpiresAt"] = noticeMessages["ExpiresAt.past"]
		}
	}

	if len(fields) > 0 {
		return notice.Draft{}, &FormError{Fields: fields}
	}

	d := notice.Draft{
		Title:     f.Title,
		Content:   f.Content,
		Category:  category,
		Priority:  notice.Priority(f.Priority),
		ExpiresAt: expires,
	}
	if category != notice.CategoryMain {
		d.Subcategory = notice.SubcategoryPtr(f.Subcategory)
	}
	if err := d.Validate(); err != nil {
		return notice.Draft{}, err
	}
	return d, nil
}

// SignUpForm is the submitted registration form.
type SignUpForm struct {
	Email           string `validate:"required,email,max=254"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
	Name            string `validate:"max=120"`
	Role            string `validate:"omitempty,oneof=student user"`
	Department      string `validate:"max=50"`
}

var signUpMessages = map[string]string{
	"Email.required":    "Email is required",
	"Email.email":       "Please enter a valid email address",
	"Email.max":         "Email is too long",
	"Password.required": "Password is required",
	"Password.min":      "Password must be at least 6 characters",
	"ConfirmPassword":   "Passwords do not match",
	"Name.max":          "Name must be at most 120 characters",
	"Role.oneof":        "Please select a valid role",
	"Department.max":    "Department is too long",
}

// Check validates the registration form.
// POST: returns a *FormError when any field is invalid
func (f SignUpForm) Check() error {
	f.Email = strings.TrimSpace(f.Email)
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		msg, ok := signUpMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = signUpMessages[fe.Field()]
		}
		if msg == "" {
			msg = fe.Field() + " is invalid"
		}
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = msg
		}
	}
	return &FormError{Fields: fields}
}

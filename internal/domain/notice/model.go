package notice

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the top-level scope of a notice.
type Category string

// Notice categories
const (
	CategoryMain       Category = "main"
	CategoryDepartment Category = "department"
	CategoryClub       Category = "club"
)

// ValidCategories contains all valid notice categories.
var ValidCategories = []Category{CategoryMain, CategoryDepartment, CategoryClub}

// PreviewLength is the number of characters shown on a card before "Read More".
const PreviewLength = 150

// DefaultExpiry is how long a newly created notice stays visible unless the author says otherwise.
const DefaultExpiry = 30 * 24 * time.Hour

// Domain errors
var (
	ErrEmptyTitle              = errors.New("notice title cannot be empty")
	ErrEmptyContent            = errors.New("notice content cannot be empty")
	ErrInvalidCategory         = errors.New("notice category must be one of: main, department, club")
	ErrMissingSubcategory      = errors.New("department and club notices require a subcategory")
	ErrUnexpectedSubcategory   = errors.New("main notices cannot have a subcategory")
	ErrInvalidPriority         = errors.New("notice priority must be one of: low, medium, high")
	ErrUnregisteredSubcategory = errors.New("subcategory is not registered for this category")
)

// Notice is a single announcement as returned by the backend.
// Subcategory is nil exactly when Category is main.
type Notice struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"` // Markdown
	Category    Category  `json:"category"`
	Subcategory *string   `json:"subcategory"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Views       int       `json:"views"`
	Author      string    `json:"author"`
}

// Validate checks the notice against the category/subcategory invariant.
// PRE: Notice struct is populated
// POST: Returns nil if valid, error otherwise
func (n *Notice) Validate() error {
	if err := validateFields(n.Title, n.Content, n.Category, n.Subcategory, n.Priority); err != nil {
		return err
	}
	if n.Views < 0 {
		return errors.New("notice views cannot be negative")
	}
	return nil
}

// SubcategoryName returns the subcategory or "" for main notices.
func (n Notice) SubcategoryName() string {
	if n.Subcategory == nil {
		return ""
	}
	return *n.Subcategory
}

// Scope returns the (category, subcategory) pair this notice belongs to.
func (n Notice) Scope() Scope {
	return Scope{Category: n.Category, Subcategory: n.SubcategoryName()}
}

// Preview returns the first PreviewLength characters of the content and
// whether the content was cut short.
// INVARIANT: Content is not mutated
func (n Notice) Preview() (string, bool) {
	if utf8.RuneCountInString(n.Content) <= PreviewLength {
		return n.Content, false
	}
	runes := []rune(n.Content)
	return strings.TrimSpace(string(runes[:PreviewLength])) + "...", true
}

// IsExpired reports whether the notice has a set expiry that has passed.
func (n Notice) IsExpired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt)
}

// Draft carries the editable fields of a notice for create and update calls.
// Updates are full replacements of these fields.
type Draft struct {
	Title       string
	Content     string
	Category    Category
	Subcategory *string
	Priority    Priority
	ExpiresAt   time.Time
}

// Validate checks the draft against the category/subcategory invariant.
// PRE: Draft struct is populated
// POST: Returns nil if valid, error otherwise
func (d *Draft) Validate() error {
	return validateFields(d.Title, d.Content, d.Category, d.Subcategory, d.Priority)
}

// CheckRegistered verifies that a non-main subcategory is one of names.
// PRE: Validate has passed
func (d *Draft) CheckRegistered(names []string) error {
	if d.Category == CategoryMain {
		return nil
	}
	for _, name := range names {
		if name == *d.Subcategory {
			return nil
		}
	}
	return ErrUnregisteredSubcategory
}

// DraftFrom copies the editable fields of n.
func DraftFrom(n Notice) Draft {
	d := Draft{
		Title:     n.Title,
		Content:   n.Content,
		Category:  n.Category,
		Priority:  n.Priority,
		ExpiresAt: n.ExpiresAt,
	}
	if n.Subcategory != nil {
		sub := *n.Subcategory
		d.Subcategory = &sub
	}
	return d
}

// Scope narrows which notices a query or view targets. The zero Scope means
// every category.
type Scope struct {
	Category    Category
	Subcategory string
}

// IsAll reports whether the scope places no restriction.
func (s Scope) IsAll() bool {
	return s.Category == "" && s.Subcategory == ""
}

// String renders the scope for logs and map keys.
func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	if s.Subcategory == "" {
		return string(s.Category)
	}
	return string(s.Category) + "/" + s.Subcategory
}

// SubcategoryPtr returns a pointer to name, or nil when name is empty.
func SubcategoryPtr(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}

// IsValidCategory reports whether c is one of ValidCategories.
func IsValidCategory(c Category) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

func validateFields(title, content string, category Category, sub *string, priority Priority) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if !IsValidCategory(category) {
		return ErrInvalidCategory
	}
	if category == CategoryMain {
		if sub != nil {
			return ErrUnexpectedSubcategory
		}
	} else if sub == nil || strings.TrimSpace(*sub) == "" {
		return ErrMissingSubcategory
	}
	if !priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

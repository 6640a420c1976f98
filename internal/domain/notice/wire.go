package notice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority is a notice's urgency. The backend may send it as a name or as a
// number from 1 to 3.
type Priority string

// Notice priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriorities contains all valid priorities, lowest first.
var ValidPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Rank orders priorities for sorting: high=3, medium=2, low=1, anything else 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// IsValid reports whether p is one of ValidPriorities.
func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// PriorityFromRank maps 1..3 to a named priority. Other ranks are kept as
// their decimal text and therefore rank 0.
func PriorityFromRank(n int) Priority {
	switch n {
	case 3:
		return PriorityHigh
	case 2:
		return PriorityMedium
	case 1:
		return PriorityLow
	}
	return Priority(strconv.Itoa(n))
}

// UnmarshalJSON accepts "high", 3 and "3" alike.
func (p *Priority) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("priority: %w", err)
		}
		*p = PriorityFromRank(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		*p = PriorityFromRank(n)
		return nil
	}
	*p = Priority(strings.ToLower(strings.TrimSpace(s)))
	return nil
}

// timestampLayouts covers RFC 3339 and the zone-less form some backends emit.
// Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp. Empty input yields the zero time.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// noticeWire mirrors the backend representation before normalisation.
type noticeWire struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Category    Category        `json:"category"`
	Subcategory *string         `json:"subcategory"`
	Priority    Priority        `json:"priority"`
	CreatedAt   string          `json:"created_at"`
	ExpiresAt   *string         `json:"expires_at"`
	Views       int             `json:"views"`
	Author      json.RawMessage `json:"author"`
}

// UnmarshalJSON decodes a backend notice: numeric or string id, tolerant
// timestamps, numeric or named priority, and an author given either as a
// string or as an object with a name.
func (n *Notice) UnmarshalJSON(b []byte) error {
	var w noticeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	created, err := ParseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	var expires time.Time
	if w.ExpiresAt != nil {
		if expires, err = ParseTimestamp(*w.ExpiresAt); err != nil {
			return fmt.Errorf("expires_at: %w", err)
		}
	}
	*n = Notice{
		ID:          rawScalar(w.ID),
		Title:       w.Title,
		Content:     w.Content,
		Category:    w.Category,
		Subcategory: w.Subcategory,
		Priority:    w.Priority,
		CreatedAt:   created,
		ExpiresAt:   expires,
		Views:       w.Views,
		Author:      authorName(w.Author),
	}
	if n.Subcategory != nil && *n.Subcategory == "" {
		n.Subcategory = nil
	}
	return nil
}

// MarshalJSON encodes the draft in the backend's create/update shape.
// Priority goes out as its numeric rank.
func (d Draft) MarshalJSON() ([]byte, error) {
	out := struct {
		Title       string   `json:"title"`
		Content     string   `json:"content"`
		Category    Category `json:"category"`
		Subcategory *string  `json:"subcategory"`
		Priority    int      `json:"priority"`
		ExpiresAt   string   `json:"expires_at,omitempty"`
	}{
		Title:       d.Title,
		Content:     d.Content,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Priority:    d.Priority.Rank(),
	}
	if !d.ExpiresAt.IsZero() {
		out.ExpiresAt = d.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func authorName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != "" {
			return obj.Name
		}
		return obj.Email
	}
	return ""
}

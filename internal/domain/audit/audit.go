package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category represents the area an audit event belongs to.
type Category string

const (
	CategoryNotice   Category = "notice"
	CategorySession  Category = "session"
	CategoryAccount  Category = "account"
	CategorySecurity Category = "security"
	CategorySystem   Category = "system"
)

// Action represents the action that occurred.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionSignIn  Action = "sign_in"
	ActionSignOut Action = "sign_out"
	ActionSignUp  Action = "sign_up"
	ActionDenied  Action = "denied"
	ActionPrune   Action = "prune"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Domain errors
var (
	ErrEmptyAction   = errors.New("audit event action cannot be empty")
	ErrEmptyCategory = errors.New("audit event category cannot be empty")
)

// Event is one entry in the local activity trail. It records what this front
// end asked the backend to do on a user's behalf; the backend keeps its own
// authoritative history.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Category     Category  `json:"category"`
	Action       Action    `json:"action"`
	Severity     Severity  `json:"severity"`
	ActorUID     string    `json:"actor_uid"`
	ActorEmail   string    `json:"actor_email"`
	ActorRole    string    `json:"actor_role"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	Description  string    `json:"description"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
}

// NewEvent creates a new audit event stamped with now.
// PRE: action and category are non-empty
// POST: Returns an Event with a fresh ID and info severity
func NewEvent(actorUID, actorEmail, actorRole string, category Category, action Action, now time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Timestamp:  now,
		Category:   category,
		Action:     action,
		Severity:   SeverityInfo,
		ActorUID:   actorUID,
		ActorEmail: actorEmail,
		ActorRole:  actorRole,
	}
}

// Validate checks if the Event has valid data.
// PRE: Event struct is populated
// POST: Returns nil if valid, error otherwise
func (e Event) Validate() error {
	if e.Category == "" {
		return ErrEmptyCategory
	}
	if e.Action == "" {
		return ErrEmptyAction
	}
	return nil
}

// WithSeverity sets the severity level.
func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithResource sets resource information.
// PRE: resourceType is non-empty
// POST: Event resource fields are populated
func (e Event) WithResource(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithDescription sets the event description.
func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithRequest sets IP address and user agent from the originating HTTP request.
func (e Event) WithRequest(ipAddress, userAgent string) Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// Summary renders a one-line description for activity feeds.
func (e Event) Summary() string {
	who := e.ActorEmail
	if who == "" {
		who = "someone"
	}
	if e.Description != "" {
		return who + ": " + e.Description
	}
	return who + " " + string(e.Action) + " " + string(e.Category)
}

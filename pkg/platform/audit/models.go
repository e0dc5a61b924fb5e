package audit

import (
	"context"
	"time"

	id "kycflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: account
	// creation, submission and the review decision.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// failed logins, logouts, password reset requests.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine progress through the wizard.
	CategoryOperations EventCategory = "operations"
)

// Event is an immutable audit log entry. ApplicationID and UserID are
// optional; LOGIN_FAILED carries no user.
type Event struct {
	ID            string           `json:"id"`
	Category      EventCategory    `json:"category"`
	Timestamp     time.Time        `json:"created_at"`
	UserID        id.UserID        `json:"user_id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	Action        string           `json:"action"`
	Details       map[string]any   `json:"details,omitempty"`
	IP            string           `json:"ip_address,omitempty"`
	UserAgent     string           `json:"user_agent,omitempty"`
	RequestID     string           `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventRegisterSuccess      AuditEvent = "REGISTER_SUCCESS"
	EventLoginSuccess         AuditEvent = "LOGIN_SUCCESS"
	EventLoginFailed          AuditEvent = "LOGIN_FAILED"
	EventLogout               AuditEvent = "LOGOUT"
	EventPasswordResetRequest AuditEvent = "PASSWORD_RESET_REQUEST"
	EventApplicationCreated   AuditEvent = "KYC_APPLICATION_CREATED"
	EventApplicationUpdated   AuditEvent = "KYC_APPLICATION_UPDATED"
	EventDocumentUploaded     AuditEvent = "KYC_DOCUMENT_UPLOADED"
	EventFacialCompleted      AuditEvent = "KYC_FACIAL_VERIFICATION_COMPLETED"
	EventApplicationSubmitted AuditEvent = "KYC_APPLICATION_SUBMITTED"
	EventApplicationInReview  AuditEvent = "KYC_APPLICATION_UNDER_REVIEW"
	EventApplicationApproved  AuditEvent = "KYC_APPLICATION_APPROVED"
	EventApplicationRejected  AuditEvent = "KYC_APPLICATION_REJECTED"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegisterSuccess:      CategoryCompliance,
	EventApplicationSubmitted: CategoryCompliance,
	EventApplicationApproved:  CategoryCompliance,
	EventApplicationRejected:  CategoryCompliance,

	EventLoginFailed:          CategorySecurity,
	EventLogout:               CategorySecurity,
	EventPasswordResetRequest: CategorySecurity,

	EventLoginSuccess:        CategoryOperations,
	EventApplicationCreated:  CategoryOperations,
	EventApplicationUpdated:  CategoryOperations,
	EventDocumentUploaded:    CategoryOperations,
	EventFacialCompleted:     CategoryOperations,
	EventApplicationInReview: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Filter selects stored events. Zero-valued fields do not filter.
// Results are ordered newest first.
type Filter struct {
	UserID        id.UserID
	ApplicationID id.ApplicationID
	Action        string
	Offset        int
	Limit         int
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, int, error)
}

// Sink receives a copy of every stored event (e.g. a Kafka topic).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

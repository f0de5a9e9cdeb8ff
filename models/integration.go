package models

import (
	"context"
	"time"
)

// Provider categories. Every registered provider belongs to exactly one.
const (
	CategoryProductivity  = "productivity"
	CategoryTicketing     = "ticketing"
	CategoryCommunication = "communication"
)

// Integration represents a persisted authorization between one
// organization and one provider. Tokens are stored encrypted; the raw
// values only exist in memory at the point of use.
type Integration struct {
	ID             string
	OrganizationID string
	Provider       string
	Category       string
	AccessToken    []byte // Stored encrypted
	RefreshToken   []byte // Stored encrypted
	TokenExpiresAt *time.Time
	Config         map[string]any
	IsActive       bool
	LastSyncAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Connection maps one note to one postable destination under one
// integration. Config holds a snapshot of the channel metadata taken
// at connect time.
type Connection struct {
	ID            string
	NoteID        string
	IntegrationID string
	ExternalID    string
	Config        map[string]any
	IsActive      bool
	LastPostedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Activity log statuses.
const (
	LogStatusSuccess = "success"
	LogStatusError   = "error"
	LogStatusPending = "pending"
)

// ActivityLogEntry is an append-only audit record of one operation
// against one integration.
type ActivityLogEntry struct {
	ID            string
	IntegrationID string
	Action        string
	Status        string
	RequestData   map[string]any
	ResponseData  map[string]any
	ErrorMessage  string
	CreatedAt     time.Time
}

// IntegrationSelectParams filters integration listing.
type IntegrationSelectParams struct {
	OrganizationID string
	Provider       string
	ActiveOnly     bool
}

// IntegrationRepository manages integration storage
type IntegrationRepository interface {
	Get(ctx context.Context, id string) (*Integration, error)
	GetByProvider(ctx context.Context, organizationID, provider string) (*Integration, error)
	Select(ctx context.Context, params IntegrationSelectParams) ([]Integration, error)
	Create(ctx context.Context, integration *Integration) error
	Update(ctx context.Context, integration *Integration) error
	Delete(ctx context.Context, id string) error
}

// ConnectionRepository manages note-to-channel connection storage
type ConnectionRepository interface {
	Get(ctx context.Context, id string) (*Connection, error)
	SelectByNote(ctx context.Context, noteID string) ([]Connection, error)
	SelectByIntegration(ctx context.Context, integrationID string) ([]Connection, error)
	Create(ctx context.Context, conn *Connection) error
	MarkPosted(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByIntegration(ctx context.Context, integrationID string) (int64, error)
	DeleteByNote(ctx context.Context, noteID string) (int64, error)
}

// ActivityLogRepository manages the append-only activity log
type ActivityLogRepository interface {
	Append(ctx context.Context, entry *ActivityLogEntry) error
	SelectByIntegration(ctx context.Context, integrationID string, limit int) ([]ActivityLogEntry, error)
	DeleteByIntegration(ctx context.Context, integrationID string) (int64, error)
}

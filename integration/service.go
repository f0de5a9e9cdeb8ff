// Package integration is the façade over integrations, note-channel
// connections and the activity log. It enforces the cross-entity
// invariants and is the only writer of integration state.
package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/registry"
	"github.com/notewire/integrations/tokens"
)

// Activity log actions emitted by the façade and the dispatcher.
const (
	ActionConnected     = "integration_connected"
	ActionDisconnected  = "integration_disconnected"
	ActionChannelLinked = "channel_linked"
	ActionChannelUnlink = "channel_unlinked"
	ActionNotePosted    = "note_posted"
	ActionTokenRefresh  = "token_refreshed"
	ActionTokenRevoked  = "token_revoked"
)

type Service struct {
	integrations models.IntegrationRepository
	connections  models.ConnectionRepository
	logs         models.ActivityLogRepository
	notes        models.NoteRepository
	registry     *registry.Registry
	manager      *tokens.Manager
	logger       *zap.Logger
}

func NewService(
	integrations models.IntegrationRepository,
	connections models.ConnectionRepository,
	logs models.ActivityLogRepository,
	notes models.NoteRepository,
	reg *registry.Registry,
	manager *tokens.Manager,
	logger *zap.Logger,
) *Service {
	return &Service{
		integrations: integrations,
		connections:  connections,
		logs:         logs,
		notes:        notes,
		registry:     reg,
		manager:      manager,
		logger:       logger,
	}
}

// CreateIntegration persists a new integration for the organization
// with encrypted tokens. The category is copied from the provider's
// own metadata.
func (s *Service) CreateIntegration(ctx context.Context, organizationID, providerName string, td *models.TokenData, cfg map[string]any) (*models.Integration, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	integration := models.Integration{
		OrganizationID: organizationID,
		Provider:       p.Name(),
		Category:       p.Category(),
		Config:         cfg,
		IsActive:       true,
	}

	if err := s.manager.EncryptTokenData(&integration, td); err != nil {
		return nil, err
	}

	if err := s.integrations.Create(ctx, &integration); err != nil {
		return nil, err
	}

	s.logActivity(ctx, &models.ActivityLogEntry{
		IntegrationID: integration.ID,
		Action:        ActionConnected,
		Status:        models.LogStatusSuccess,
		RequestData:   map[string]any{"provider": providerName},
	})

	return &integration, nil
}

// Integration returns one integration by id.
func (s *Service) Integration(ctx context.Context, id string) (*models.Integration, error) {
	return s.integrations.Get(ctx, id)
}

// Integrations lists the organization's integrations.
func (s *Service) Integrations(ctx context.Context, organizationID string, activeOnly bool) ([]models.Integration, error) {
	return s.integrations.Select(ctx, models.IntegrationSelectParams{
		OrganizationID: organizationID,
		ActiveOnly:     activeOnly,
	})
}

// UpdateConfig replaces the provider-specific configuration blob.
func (s *Service) UpdateConfig(ctx context.Context, id string, cfg map[string]any) (*models.Integration, error) {
	integration, err := s.integrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	integration.Config = cfg

	if err := s.integrations.Update(ctx, integration); err != nil {
		return nil, err
	}

	return integration, nil
}

// DisconnectIntegration removes the integration and everything under
// it. Children go first so no orphaned references survive: the child
// counts are captured before the cascade and recorded in a final log
// entry.
func (s *Service) DisconnectIntegration(ctx context.Context, id string) error {
	integration, err := s.integrations.Get(ctx, id)
	if err != nil {
		return err
	}

	if p, err := s.registry.Get(integration.Provider); err == nil {
		if err := s.manager.Revoke(ctx, integration, p); err != nil {
			s.logger.Warn("failed to revoke tokens on disconnect",
				zap.String("integration_id", id), zap.Error(err))
		}
	}

	connCount, err := s.connections.DeleteByIntegration(ctx, id)
	if err != nil {
		return err
	}

	logCount, err := s.logs.DeleteByIntegration(ctx, id)
	if err != nil {
		return err
	}

	if err := s.integrations.Delete(ctx, id); err != nil {
		return err
	}

	s.logActivity(ctx, &models.ActivityLogEntry{
		IntegrationID: id,
		Action:        ActionDisconnected,
		Status:        models.LogStatusSuccess,
		ResponseData: map[string]any{
			"connections_removed": connCount,
			"log_entries_removed": logCount,
		},
	})

	s.logger.Info("integration disconnected",
		zap.String("integration_id", id),
		zap.String("provider", integration.Provider),
		zap.Int64("connections_removed", connCount),
		zap.Int64("log_entries_removed", logCount))

	return nil
}

// ConnectNoteToChannel links a note to a provider channel. The
// organization invariant is checked before any write, and the channel
// must exist on the provider side — connect latency includes one live
// provider round-trip.
func (s *Service) ConnectNoteToChannel(ctx context.Context, noteID, integrationID, externalID string, cfg map[string]any) (*models.Connection, error) {
	integration, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	if !integration.IsActive {
		return nil, models.ErrIntegrationInactive
	}

	note, err := s.notes.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}

	if note.OrganizationID != integration.OrganizationID {
		return nil, models.ErrOrganizationMismatch
	}

	p, err := s.registry.Get(integration.Provider)
	if err != nil {
		return nil, err
	}

	token, err := s.manager.ValidAccessToken(ctx, integration, p)
	if err != nil {
		return nil, err
	}

	channels, err := p.ListChannels(ctx, integration, token)
	if err != nil {
		return nil, err
	}

	var channel *models.Channel

	for i := range channels {
		if channels[i].ID == externalID {
			channel = &channels[i]
			break
		}
	}

	if channel == nil {
		return nil, models.ErrChannelNotFound
	}

	if cfg == nil {
		cfg = make(map[string]any)
	}

	cfg["channel_name"] = channel.Name
	cfg["channel_kind"] = channel.Kind

	conn := models.Connection{
		NoteID:        noteID,
		IntegrationID: integrationID,
		ExternalID:    externalID,
		Config:        cfg,
		IsActive:      true,
	}

	if err := s.connections.Create(ctx, &conn); err != nil {
		return nil, err
	}

	s.logActivity(ctx, &models.ActivityLogEntry{
		IntegrationID: integrationID,
		Action:        ActionChannelLinked,
		Status:        models.LogStatusSuccess,
		RequestData: map[string]any{
			"note_id":     noteID,
			"external_id": externalID,
		},
	})

	return &conn, nil
}

// DisconnectNoteFromChannel removes one connection.
func (s *Service) DisconnectNoteFromChannel(ctx context.Context, connectionID string) error {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return err
	}

	if err := s.connections.Delete(ctx, connectionID); err != nil {
		return err
	}

	s.logActivity(ctx, &models.ActivityLogEntry{
		IntegrationID: conn.IntegrationID,
		Action:        ActionChannelUnlink,
		Status:        models.LogStatusSuccess,
		RequestData: map[string]any{
			"note_id":     conn.NoteID,
			"external_id": conn.ExternalID,
		},
	})

	return nil
}

// Note returns one note by id.
func (s *Service) Note(ctx context.Context, id string) (*models.Note, error) {
	return s.notes.Get(ctx, id)
}

// Connection returns one connection by id.
func (s *Service) Connection(ctx context.Context, id string) (*models.Connection, error) {
	return s.connections.Get(ctx, id)
}

// NoteConnections lists the connections attached to a note.
func (s *Service) NoteConnections(ctx context.Context, noteID string) ([]models.Connection, error) {
	return s.connections.SelectByNote(ctx, noteID)
}

// IntegrationConnections lists the connections under an integration.
func (s *Service) IntegrationConnections(ctx context.Context, integrationID string) ([]models.Connection, error) {
	return s.connections.SelectByIntegration(ctx, integrationID)
}

// Channels lists the postable destinations the provider currently
// offers for this integration.
func (s *Service) Channels(ctx context.Context, integrationID string) ([]models.Channel, error) {
	integration, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	p, err := s.registry.Get(integration.Provider)
	if err != nil {
		return nil, err
	}

	token, err := s.manager.ValidAccessToken(ctx, integration, p)
	if err != nil {
		return nil, err
	}

	return p.ListChannels(ctx, integration, token)
}

// ActivityLog returns the most recent log entries for an integration.
func (s *Service) ActivityLog(ctx context.Context, integrationID string, limit int) ([]models.ActivityLogEntry, error) {
	return s.logs.SelectByIntegration(ctx, integrationID, limit)
}

// MarkPosted updates the connection's last posted timestamp after a
// confirmed successful post.
func (s *Service) MarkPosted(ctx context.Context, connectionID string, at time.Time) error {
	return s.connections.MarkPosted(ctx, connectionID, at)
}

// LogActivity appends an activity log entry, swallowing write failures
// so logging never breaks the primary operation.
func (s *Service) LogActivity(ctx context.Context, entry *models.ActivityLogEntry) {
	s.logActivity(ctx, entry)
}

func (s *Service) logActivity(ctx context.Context, entry *models.ActivityLogEntry) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to write activity log entry",
			zap.String("integration_id", entry.IntegrationID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

package integration

import (
	"context"
	"time"

	"github.com/notewire/integrations/models"
)

// Health values derived from recent activity.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
	HealthUnknown  = "unknown"
)

const statusWindow = 20

// Status is the derived health view of one integration.
type Status struct {
	IntegrationID string     `json:"integration_id"`
	Provider      string     `json:"provider"`
	IsActive      bool       `json:"is_active"`
	Health        string     `json:"health"`
	RecentErrors  int        `json:"recent_errors"`
	RecentTotal   int        `json:"recent_total"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Status derives an integration's health from its most recent activity
// log entries. More than half of the window failing counts as failing,
// any failure as degraded.
func (s *Service) Status(ctx context.Context, integrationID string) (*Status, error) {
	integration, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	entries, err := s.logs.SelectByIntegration(ctx, integrationID, statusWindow)
	if err != nil {
		return nil, err
	}

	status := Status{
		IntegrationID: integration.ID,
		Provider:      integration.Provider,
		IsActive:      integration.IsActive,
		Health:        HealthUnknown,
		RecentTotal:   len(entries),
	}

	for _, e := range entries {
		if e.Status == models.LogStatusError {
			status.RecentErrors++

			if status.LastError == "" {
				status.LastError = e.ErrorMessage
			}
		}
	}

	if len(entries) > 0 {
		last := entries[0].CreatedAt
		status.LastActivity = &last

		switch {
		case status.RecentErrors == 0:
			status.Health = HealthHealthy
		case status.RecentErrors*2 > len(entries):
			status.Health = HealthFailing
		default:
			status.Health = HealthDegraded
		}
	}

	return &status, nil
}

// Package dispatcher fans note lifecycle events out to every channel
// connected to the note. Dispatch is fire-and-forget from the note
// mutation path; failures are visible only through the activity log.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notewire/integrations/config"
	"github.com/notewire/integrations/integration"
	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/provider"
	"github.com/notewire/integrations/registry"
	"github.com/notewire/integrations/telemetry"
	"github.com/notewire/integrations/tokens"
)

const (
	// DefaultMaxContentLength bounds message content in runes.
	DefaultMaxContentLength = 500

	dispatchTimeout = 2 * time.Minute
	maxBatchWorkers = 4
)

// Enqueuer hands an event to a durable queue instead of dispatching
// in-process. Wired to the asynq client in the worker deployment.
type Enqueuer interface {
	EnqueueNoteEvent(ctx context.Context, ev models.NoteEvent) error
}

type Dispatcher struct {
	integrations models.IntegrationRepository
	connections  models.ConnectionRepository
	logs         models.ActivityLogRepository
	notes        models.NoteRepository
	registry     *registry.Registry
	manager      *tokens.Manager
	settings     *config.Settings
	telemetry    telemetry.Telemetry
	logger       *zap.Logger
	enqueuer     Enqueuer
	baseURL      string

	wg sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithEnqueuer routes triggered events through a durable queue.
func WithEnqueuer(e Enqueuer) Option {
	return func(d *Dispatcher) {
		d.enqueuer = e
	}
}

// WithTelemetry attaches an event sink for dispatch outcomes.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(d *Dispatcher) {
		d.telemetry = t
	}
}

func New(
	integrations models.IntegrationRepository,
	connections models.ConnectionRepository,
	logs models.ActivityLogRepository,
	notes models.NoteRepository,
	reg *registry.Registry,
	manager *tokens.Manager,
	settings *config.Settings,
	baseURL string,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		integrations: integrations,
		connections:  connections,
		logs:         logs,
		notes:        notes,
		registry:     reg,
		manager:      manager,
		settings:     settings,
		telemetry:    telemetry.Noop(),
		logger:       logger,
		baseURL:      baseURL,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// NoteCreated triggers dispatch for a newly created note. It returns
// before the dispatch completes.
func (d *Dispatcher) NoteCreated(noteID, userID string) {
	d.trigger(models.NoteEvent{
		NoteID:     noteID,
		UserID:     userID,
		ChangeType: models.ChangeCreated,
		OccurredAt: time.Now().UTC(),
	})
}

// NoteUpdated triggers dispatch for an updated note.
func (d *Dispatcher) NoteUpdated(noteID, userID string) {
	d.trigger(models.NoteEvent{
		NoteID:     noteID,
		UserID:     userID,
		ChangeType: models.ChangeUpdated,
		OccurredAt: time.Now().UTC(),
	})
}

// NoteDeleted triggers dispatch for a deleted note. The caller must
// capture the snapshot before the row and its connections are removed;
// after deletion there is nothing left to look up.
func (d *Dispatcher) NoteDeleted(noteID, userID string, snapshot models.NoteSnapshot) {
	d.trigger(models.NoteEvent{
		NoteID:     noteID,
		UserID:     userID,
		ChangeType: models.ChangeDeleted,
		Snapshot:   &snapshot,
		OccurredAt: time.Now().UTC(),
	})
}

func (d *Dispatcher) trigger(ev models.NoteEvent) {
	if d.enqueuer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := d.enqueuer.EnqueueNoteEvent(ctx, ev)
		if err == nil {
			return
		}

		d.logger.Warn("failed to enqueue note event, dispatching in-process",
			zap.String("note_id", ev.NoteID), zap.Error(err))
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("panic during note event dispatch",
					zap.String("note_id", ev.NoteID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		result := d.ProcessEvent(ctx, ev)
		if !result.Success {
			d.logger.Warn("note event dispatch failed",
				zap.String("note_id", ev.NoteID),
				zap.Strings("errors", result.Errors))
		}
	}()
}

// Wait blocks until all in-flight dispatches complete. Used by
// graceful shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// ProcessEvent resolves the event's connections and fans the composed
// message out to their providers. Success reflects infrastructure
// faults only, never individual post failures.
func (d *Dispatcher) ProcessEvent(ctx context.Context, ev models.NoteEvent) models.EventResult {
	if disabled, err := d.settings.GetBool(ctx, config.KeyNotifyDisabled, false); err == nil && disabled {
		return models.EventResult{Success: true}
	}

	note, orgID, err := d.resolveNote(ctx, ev)
	if err != nil {
		return models.EventResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("failed to resolve note %s: %v", ev.NoteID, err)},
		}
	}

	active, err := d.integrations.Select(ctx, models.IntegrationSelectParams{
		OrganizationID: orgID,
		ActiveOnly:     true,
	})
	if err != nil {
		return models.EventResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("failed to list integrations: %v", err)},
		}
	}

	if len(active) == 0 {
		return models.EventResult{Success: true}
	}

	conns, err := d.connections.SelectByNote(ctx, ev.NoteID)
	if err != nil {
		return models.EventResult{
			Success: false,
			Errors:  []string{fmt.Sprintf("failed to list connections: %v", err)},
		}
	}

	byID := make(map[string]*models.Integration, len(active))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}

	targets := make([]models.Connection, 0, len(conns))
	for _, c := range conns {
		if c.IsActive && byID[c.IntegrationID] != nil {
			targets = append(targets, c)
		}
	}

	if len(targets) == 0 {
		return models.EventResult{Success: true}
	}

	msg := d.composeMessage(ctx, ev, note)

	resolved := d.resolveTokens(ctx, targets, byID)

	result := d.fanOut(ctx, ev, targets, byID, resolved, msg)

	_ = d.telemetry.Send(ctx, telemetry.NewEvent("note_event_dispatched", map[string]any{
		"change_type": ev.ChangeType,
		"connections": len(targets),
		"notified":    result.ConnectionsNotified,
		"failed":      len(result.Errors),
	}))

	return result
}

// ProcessBatchEvents applies ProcessEvent independently per event,
// preserving input order. There is no cross-event atomicity.
func (d *Dispatcher) ProcessBatchEvents(ctx context.Context, evs []models.NoteEvent) []models.EventResult {
	results := make([]models.EventResult, len(evs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchWorkers)

	for i := range evs {
		i := i

		g.Go(func() error {
			results[i] = d.ProcessEvent(ctx, evs[i])
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// resolveNote returns the note (nil for deletions) and the owning
// organization id.
func (d *Dispatcher) resolveNote(ctx context.Context, ev models.NoteEvent) (*models.Note, string, error) {
	if ev.ChangeType == models.ChangeDeleted {
		if ev.Snapshot == nil || ev.Snapshot.OrganizationID == "" {
			return nil, "", fmt.Errorf("deletion event for note %s carries no snapshot", ev.NoteID)
		}

		return nil, ev.Snapshot.OrganizationID, nil
	}

	note, err := d.notes.Get(ctx, ev.NoteID)
	if err != nil {
		return nil, "", err
	}

	return note, note.OrganizationID, nil
}

type postOutcome struct {
	connectionID string
	err          error
}

// resolvedTarget carries the provider and access token shared by all
// connections of one integration, or the resolution failure.
type resolvedTarget struct {
	provider provider.Provider
	token    *models.TokenData
	err      error
}

// resolveTokens looks up the provider and a valid access token once
// per integration, before any goroutine is spawned. The fan-out reads
// the integration structs and tokens but never writes them, and a
// token refresh happens at most once per integration per event.
func (d *Dispatcher) resolveTokens(ctx context.Context, targets []models.Connection, byID map[string]*models.Integration) map[string]resolvedTarget {
	resolved := make(map[string]resolvedTarget, len(byID))

	for _, c := range targets {
		if _, ok := resolved[c.IntegrationID]; ok {
			continue
		}

		integ := byID[c.IntegrationID]

		var rt resolvedTarget

		rt.provider, rt.err = d.registry.Get(integ.Provider)
		if rt.err == nil {
			rt.token, rt.err = d.manager.ValidAccessToken(ctx, integ, rt.provider)
		}

		resolved[c.IntegrationID] = rt
	}

	return resolved
}

// fanOut posts concurrently to every target connection and waits for
// all outcomes. One connection's failure never blocks the others.
func (d *Dispatcher) fanOut(ctx context.Context, ev models.NoteEvent, targets []models.Connection, byID map[string]*models.Integration, resolved map[string]resolvedTarget, msg *models.Message) models.EventResult {
	outcomes := make([]postOutcome, len(targets))

	var wg sync.WaitGroup

	for i := range targets {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			conn := targets[i]
			outcomes[i] = postOutcome{
				connectionID: conn.ID,
				err:          d.postToConnection(ctx, byID[conn.IntegrationID], resolved[conn.IntegrationID], &conn, msg),
			}
		}()
	}

	wg.Wait()

	result := models.EventResult{Success: true}

	for i := range outcomes {
		if outcomes[i].err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("connection %s: %v", outcomes[i].connectionID, outcomes[i].err))

			continue
		}

		result.ConnectionsNotified++
	}

	d.logger.Info("note event fan-out complete",
		zap.String("note_id", ev.NoteID),
		zap.String("change_type", ev.ChangeType),
		zap.Int("notified", result.ConnectionsNotified),
		zap.Int("failed", len(result.Errors)))

	return result
}

func (d *Dispatcher) postToConnection(ctx context.Context, integ *models.Integration, rt resolvedTarget, conn *models.Connection, msg *models.Message) error {
	err := rt.err
	if err == nil {
		err = rt.provider.PostMessage(ctx, conn, rt.token, msg)
	}

	entry := models.ActivityLogEntry{
		IntegrationID: integ.ID,
		Action:        integration.ActionNotePosted,
		RequestData: map[string]any{
			"connection_id": conn.ID,
			"external_id":   conn.ExternalID,
			"change_type":   msg.ChangeType,
		},
	}

	if err != nil {
		entry.Status = models.LogStatusError
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = models.LogStatusSuccess

		if merr := d.connections.MarkPosted(ctx, conn.ID, time.Now().UTC()); merr != nil {
			d.logger.Warn("failed to update last posted timestamp",
				zap.String("connection_id", conn.ID), zap.Error(merr))
		}
	}

	if lerr := d.logs.Append(ctx, &entry); lerr != nil {
		d.logger.Warn("failed to write activity log entry",
			zap.String("integration_id", integ.ID), zap.Error(lerr))
	}

	return err
}

func (d *Dispatcher) composeMessage(ctx context.Context, ev models.NoteEvent, note *models.Note) *models.Message {
	limit := DefaultMaxContentLength
	if v, err := d.settings.GetInt(ctx, config.KeyMaxContentLength, DefaultMaxContentLength); err == nil {
		limit = v
	}

	msg := models.Message{
		ChangeType: ev.ChangeType,
		NoteURL:    fmt.Sprintf("%s/notes/%s", d.baseURL, ev.NoteID),
	}

	if note != nil {
		msg.Title = note.Title
		msg.Content = Truncate(note.Content, limit)
		msg.Author = note.AuthorName
	} else if ev.Snapshot != nil {
		msg.Title = ev.Snapshot.Title
	}

	return &msg
}

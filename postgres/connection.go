package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/notewire/integrations/models"
)

type ConnectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, note_id, integration_id, external_id, config, is_active, last_posted_at, created_at, updated_at`

func (r *ConnectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM note_connections WHERE id = $1`

	c, err := scanConnection(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrConnectionNotFound
		}

		return nil, err
	}

	return c, nil
}

func (r *ConnectionRepository) SelectByNote(ctx context.Context, noteID string) ([]models.Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM note_connections WHERE note_id = $1 ORDER BY created_at`

	return r.selectMany(ctx, q, noteID)
}

func (r *ConnectionRepository) SelectByIntegration(ctx context.Context, integrationID string) ([]models.Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM note_connections WHERE integration_id = $1 ORDER BY created_at`

	return r.selectMany(ctx, q, integrationID)
}

func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	cfg, err := marshalConfig(conn.Config)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO note_connections
		(id, note_id, integration_id, external_id, config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, q,
		conn.ID,
		conn.NoteID,
		conn.IntegrationID,
		conn.ExternalID,
		cfg,
		conn.IsActive,
		conn.CreatedAt,
		conn.UpdatedAt,
	)

	return err
}

// MarkPosted records a confirmed successful post. It is only called
// after the provider accepted the message.
func (r *ConnectionRepository) MarkPosted(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE note_connections SET last_posted_at = $2, updated_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, id, at.UTC())
	if err != nil {
		return err
	}

	return requireAffected(res, models.ErrConnectionNotFound)
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM note_connections WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}

	return requireAffected(res, models.ErrConnectionNotFound)
}

func (r *ConnectionRepository) DeleteByIntegration(ctx context.Context, integrationID string) (int64, error) {
	const q = `DELETE FROM note_connections WHERE integration_id = $1`

	res, err := r.db.ExecContext(ctx, q, integrationID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *ConnectionRepository) DeleteByNote(ctx context.Context, noteID string) (int64, error) {
	const q = `DELETE FROM note_connections WHERE note_id = $1`

	res, err := r.db.ExecContext(ctx, q, noteID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *ConnectionRepository) selectMany(ctx context.Context, q string, args ...any) ([]models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ans []models.Connection

	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, *c)
	}

	return ans, rows.Err()
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var (
		c   models.Connection
		cfg []byte
	)

	err := row.Scan(
		&c.ID,
		&c.NoteID,
		&c.IntegrationID,
		&c.ExternalID,
		&cfg,
		&c.IsActive,
		&c.LastPostedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalConfig(cfg, &c.Config); err != nil {
		return nil, err
	}

	return &c, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/notewire/integrations/models"
)

const uniqueViolation = "23505"

type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Get(ctx context.Context, id string) (*models.Integration, error) {
	const q = `
		SELECT id, organization_id, provider, category, access_token, refresh_token,
		       token_expires_at, config, is_active, last_sync_at, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *IntegrationRepository) GetByProvider(ctx context.Context, organizationID, provider string) (*models.Integration, error) {
	const q = `
		SELECT id, organization_id, provider, category, access_token, refresh_token,
		       token_expires_at, config, is_active, last_sync_at, created_at, updated_at
		FROM integrations
		WHERE organization_id = $1 AND provider = $2
	`

	return r.scanOne(r.db.QueryRowContext(ctx, q, organizationID, provider))
}

func (r *IntegrationRepository) Select(ctx context.Context, params models.IntegrationSelectParams) ([]models.Integration, error) {
	q := `
		SELECT id, organization_id, provider, category, access_token, refresh_token,
		       token_expires_at, config, is_active, last_sync_at, created_at, updated_at
		FROM integrations
		WHERE 1=1
	`

	var args []any

	if params.OrganizationID != "" {
		args = append(args, params.OrganizationID)
		q += ` AND organization_id = $` + itoa(len(args))
	}

	if params.Provider != "" {
		args = append(args, params.Provider)
		q += ` AND provider = $` + itoa(len(args))
	}

	if params.ActiveOnly {
		q += ` AND is_active = TRUE`
	}

	q += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ans []models.Integration

	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, *i)
	}

	return ans, rows.Err()
}

func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	integration.CreatedAt = now
	integration.UpdatedAt = now

	cfg, err := marshalConfig(integration.Config)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO integrations
		(id, organization_id, provider, category, access_token, refresh_token,
		 token_expires_at, config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, q,
		integration.ID,
		integration.OrganizationID,
		integration.Provider,
		integration.Category,
		integration.AccessToken,
		integration.RefreshToken,
		integration.TokenExpiresAt,
		cfg,
		integration.IsActive,
		integration.CreatedAt,
		integration.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrAlreadyExists
	}

	return err
}

func (r *IntegrationRepository) Update(ctx context.Context, integration *models.Integration) error {
	cfg, err := marshalConfig(integration.Config)
	if err != nil {
		return err
	}

	integration.UpdatedAt = time.Now().UTC()

	const q = `
		UPDATE integrations SET
			access_token = $2,
			refresh_token = $3,
			token_expires_at = $4,
			config = $5,
			is_active = $6,
			last_sync_at = $7,
			updated_at = $8
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, q,
		integration.ID,
		integration.AccessToken,
		integration.RefreshToken,
		integration.TokenExpiresAt,
		cfg,
		integration.IsActive,
		integration.LastSyncAt,
		integration.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return requireAffected(res, models.ErrIntegrationNotFound)
}

func (r *IntegrationRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM integrations WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}

	return requireAffected(res, models.ErrIntegrationNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *IntegrationRepository) scanOne(row *sql.Row) (*models.Integration, error) {
	i, err := scanIntegration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrIntegrationNotFound
		}

		return nil, err
	}

	return i, nil
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		i   models.Integration
		cfg []byte
	)

	err := row.Scan(
		&i.ID,
		&i.OrganizationID,
		&i.Provider,
		&i.Category,
		&i.AccessToken,
		&i.RefreshToken,
		&i.TokenExpiresAt,
		&cfg,
		&i.IsActive,
		&i.LastSyncAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalConfig(cfg, &i.Config); err != nil {
		return nil, err
	}

	return &i, nil
}

func marshalConfig(cfg map[string]any) ([]byte, error) {
	if cfg == nil {
		return []byte(`{}`), nil
	}

	return json.Marshal(cfg)
}

func unmarshalConfig(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, dst)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

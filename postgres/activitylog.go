package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/notewire/integrations/models"
)

type ActivityLogRepository struct {
	db *sql.DB
}

func NewActivityLogRepository(db *sql.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

func (r *ActivityLogRepository) Append(ctx context.Context, entry *models.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	reqData, err := marshalConfig(entry.RequestData)
	if err != nil {
		return err
	}

	respData, err := marshalConfig(entry.ResponseData)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO integration_activity_logs
		(id, integration_id, action, status, request_data, response_data, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, q,
		entry.ID,
		entry.IntegrationID,
		entry.Action,
		entry.Status,
		reqData,
		respData,
		nullable(entry.ErrorMessage),
		entry.CreatedAt,
	)

	return err
}

func (r *ActivityLogRepository) SelectByIntegration(ctx context.Context, integrationID string, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, integration_id, action, status, request_data, response_data, error_message, created_at
		FROM integration_activity_logs
		WHERE integration_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, q, integrationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ans []models.ActivityLogEntry

	for rows.Next() {
		var (
			e        models.ActivityLogEntry
			reqData  []byte
			respData []byte
			errMsg   sql.NullString
		)

		err := rows.Scan(&e.ID, &e.IntegrationID, &e.Action, &e.Status, &reqData, &respData, &errMsg, &e.CreatedAt)
		if err != nil {
			return nil, err
		}

		if len(reqData) > 0 {
			if err := json.Unmarshal(reqData, &e.RequestData); err != nil {
				return nil, err
			}
		}

		if len(respData) > 0 {
			if err := json.Unmarshal(respData, &e.ResponseData); err != nil {
				return nil, err
			}
		}

		e.ErrorMessage = errMsg.String

		ans = append(ans, e)
	}

	return ans, rows.Err()
}

func (r *ActivityLogRepository) DeleteByIntegration(ctx context.Context, integrationID string) (int64, error) {
	const q = `DELETE FROM integration_activity_logs WHERE integration_id = $1`

	res, err := r.db.ExecContext(ctx, q, integrationID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

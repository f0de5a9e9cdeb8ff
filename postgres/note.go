package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/notewire/integrations/models"
)

// NoteRepository is the read-side view over the notes table, which is
// owned by the note-CRUD collaborator.
type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	const q = `
		SELECT id, organization_id, title, content, author_id, author_name, created_at, updated_at
		FROM notes
		WHERE id = $1
	`

	var n models.Note

	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&n.ID,
		&n.OrganizationID,
		&n.Title,
		&n.Content,
		&n.AuthorID,
		&n.AuthorName,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNoteNotFound
		}

		return nil, err
	}

	return &n, nil
}

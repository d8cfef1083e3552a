package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowgrid/flowgrid/common/db"
	"github.com/flowgrid/flowgrid/common/models"
)

// CredentialRepository handles database operations for credentials.
// The data column always holds an encrypted token, never plaintext.
type CredentialRepository struct {
	db *db.DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *db.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (id, name, type, data)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		cred.ID,
		cred.Name,
		cred.Type,
		cred.Data,
	).Scan(&cred.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetByID retrieves a credential by its ID
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `
		SELECT id, name, type, data, created_at
		FROM credentials
		WHERE id = $1
	`

	cred, err := scanCredential(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// ListByType retrieves credentials of one type, newest first.
// An empty type returns everything.
func (r *CredentialRepository) ListByType(ctx context.Context, credType string) ([]*models.Credential, error) {
	query := `
		SELECT id, name, type, data, created_at
		FROM credentials
		WHERE ($1 = '' OR type = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, credType)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	credentials := make([]*models.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		credentials = append(credentials, cred)
	}

	return credentials, rows.Err()
}

// UpdateData replaces a credential's encrypted payload
func (r *CredentialRepository) UpdateData(ctx context.Context, id string, data string) error {
	tag, err := r.db.Exec(ctx, `UPDATE credentials SET data = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a credential
func (r *CredentialRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	cred := &models.Credential{}

	err := row.Scan(
		&cred.ID,
		&cred.Name,
		&cred.Type,
		&cred.Data,
		&cred.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return cred, nil
}

// Package incidents stores rider-reported disruptions and runs the periodic
// loop that translates them into edge weight impacts.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krakflow/krakflow_core/internal/models"
)

// ErrNotFound is returned when an incident id does not exist.
var ErrNotFound = errors.New("incident not found")

// ListFilter narrows a List call. Zero values mean no filtering.
type ListFilter struct {
	Category string
	Approved *bool
	Since    time.Time
}

// Repository is the incident store consumed by the impact loop and the API.
type Repository interface {
	Create(ctx context.Context, incident *models.Incident) error
	List(ctx context.Context, filter ListFilter) ([]models.Incident, error)
	Approve(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresRepository persists incidents in Postgres. Approving an incident
// also rewards the reporter's social score by a fixed amount.
type PostgresRepository struct {
	pool           *pgxpool.Pool
	approvalReward float64
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool, approvalReward float64) *PostgresRepository {
	return &PostgresRepository{pool: pool, approvalReward: approvalReward}
}

// EnsureSchema creates the incidents table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incidents (
			id UUID PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			reporter_social_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating incidents table: %w", err)
	}
	return nil
}

// Create inserts an incident, assigning id and creation time when unset.
func (r *PostgresRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO incidents
			(id, latitude, longitude, description, category, username, approved, reporter_social_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		incident.ID, incident.Latitude, incident.Longitude, incident.Description,
		incident.Category, incident.Username, incident.Approved,
		incident.ReporterSocialScore, incident.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting incident: %w", err)
	}
	return nil
}

// List returns incidents matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]models.Incident, error) {
	query := `
		SELECT id, latitude, longitude, description, category, username,
		       approved, reporter_social_score, created_at
		FROM incidents
		WHERE 1=1`
	args := []interface{}{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		query += fmt.Sprintf(" AND approved = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		var incident models.Incident
		if err := rows.Scan(
			&incident.ID, &incident.Latitude, &incident.Longitude,
			&incident.Description, &incident.Category, &incident.Username,
			&incident.Approved, &incident.ReporterSocialScore, &incident.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// Approve marks an incident approved and credits the reporter's score.
func (r *PostgresRepository) Approve(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE incidents
		SET approved = TRUE,
		    reporter_social_score = reporter_social_score + $2
		WHERE id = $1 AND approved = FALSE`,
		id, r.approvalReward)
	if err != nil {
		return fmt.Errorf("approving incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.checkExists(ctx, id)
	}
	return nil
}

// Revoke clears approval and takes the reward back.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE incidents
		SET approved = FALSE,
		    reporter_social_score = reporter_social_score - $2
		WHERE id = $1 AND approved = TRUE`,
		id, r.approvalReward)
	if err != nil {
		return fmt.Errorf("revoking incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.checkExists(ctx, id)
	}
	return nil
}

// Delete removes one incident.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM incidents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes incidents created before the cutoff and returns the
// number removed.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM incidents WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("bulk deleting incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// checkExists distinguishes "already in that state" from "no such incident"
// after a zero-row update.
func (r *PostgresRepository) checkExists(ctx context.Context, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking incident: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

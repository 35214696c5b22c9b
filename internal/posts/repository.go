// Package posts handles moderated social-media reports. An approved post
// inflates the transit edge nearest to its coordinates; revoking the approval
// restores the edge.
package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krakflow/krakflow_core/internal/models"
)

// ErrNotFound is returned when a post id does not exist.
var ErrNotFound = errors.New("post not found")

// Repository is the post store consumed by the moderation service.
type Repository interface {
	Create(ctx context.Context, post *models.Post) error
	Get(ctx context.Context, id string) (models.Post, error)
	List(ctx context.Context, approvedOnly bool) ([]models.Post, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepository persists posts in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the posts table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS posts (
			id UUID PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			stop_name TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}
	return nil
}

// Create inserts a post, assigning id and creation time when unset.
func (r *PostgresRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO posts (id, description, category, stop_name, latitude, longitude, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, post.Description, post.Category, post.StopName,
		post.Latitude, post.Longitude, post.Approved, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}
	return nil
}

// Get fetches one post.
func (r *PostgresRepository) Get(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	err := r.pool.QueryRow(ctx, `
		SELECT id, description, category, stop_name, latitude, longitude, approved, created_at
		FROM posts WHERE id = $1`, id).Scan(
		&post.ID, &post.Description, &post.Category, &post.StopName,
		&post.Latitude, &post.Longitude, &post.Approved, &post.CreatedAt)
	if err != nil {
		return models.Post{}, ErrNotFound
	}
	return post, nil
}

// List returns posts newest first, optionally only approved ones.
func (r *PostgresRepository) List(ctx context.Context, approvedOnly bool) ([]models.Post, error) {
	query := `
		SELECT id, description, category, stop_name, latitude, longitude, approved, created_at
		FROM posts`
	if approvedOnly {
		query += " WHERE approved = TRUE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var result []models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(
			&post.ID, &post.Description, &post.Category, &post.StopName,
			&post.Latitude, &post.Longitude, &post.Approved, &post.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		result = append(result, post)
	}
	return result, rows.Err()
}

// SetApproved flips the approval flag.
func (r *PostgresRepository) SetApproved(ctx context.Context, id string, approved bool) error {
	tag, err := r.pool.Exec(ctx, "UPDATE posts SET approved = $2 WHERE id = $1", id, approved)
	if err != nil {
		return fmt.Errorf("updating post approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one post.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

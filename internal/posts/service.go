package posts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/models"
)

// GraphMutator is the slice of the graph store the service writes through.
type GraphMutator interface {
	ClosestTransitEdge(lat, lon float64) (models.EdgeView, error)
	UpdateEdge(mode, source, target string, update graph.EdgeUpdate) (models.EdgeView, error)
}

type appliedImpact struct {
	key      graphEdgeKey
	baseline float64
}

type graphEdgeKey struct {
	mode, source, target, key string
}

// Service moderates posts and mirrors approvals onto the graph: approving a
// post multiplies the weight of its nearest transit edge, revoking restores
// the pre-approval weight.
type Service struct {
	repo       Repository
	graphs     GraphMutator
	multiplier float64

	mu      sync.Mutex
	applied map[string]appliedImpact // by post id
}

// NewService wires the moderation service. Multiplier is the weight factor
// an approved post applies to its nearest edge.
func NewService(repo Repository, graphs GraphMutator, multiplier float64) *Service {
	if multiplier <= 1 {
		multiplier = 2.0
	}
	return &Service{
		repo:       repo,
		graphs:     graphs,
		multiplier: multiplier,
		applied:    make(map[string]appliedImpact),
	}
}

// Create stores a new, unapproved post.
func (s *Service) Create(ctx context.Context, post *models.Post) error {
	post.Approved = false
	return s.repo.Create(ctx, post)
}

// List returns posts, optionally only approved ones.
func (s *Service) List(ctx context.Context, approvedOnly bool) ([]models.Post, error) {
	return s.repo.List(ctx, approvedOnly)
}

// Approve marks the post approved and inflates its nearest transit edge.
// Approving an already approved post is a no-op.
func (s *Service) Approve(ctx context.Context, id string) error {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if post.Approved {
		return nil
	}

	view, err := s.graphs.ClosestTransitEdge(post.Latitude, post.Longitude)
	if err != nil {
		return fmt.Errorf("resolving edge for post %s: %w", id, err)
	}

	weight := view.Weight * s.multiplier
	_, err = s.graphs.UpdateEdge(view.Mode, view.Source, view.Target, graph.EdgeUpdate{
		Key:               view.Key,
		Weight:            &weight,
		Multiplier:        s.multiplier,
		DistanceToPointKm: view.DistanceToPointKm,
	})
	if err != nil {
		return fmt.Errorf("applying post impact: %w", err)
	}

	if err := s.repo.SetApproved(ctx, id, true); err != nil {
		return err
	}

	s.mu.Lock()
	s.applied[id] = appliedImpact{
		key:      graphEdgeKey{mode: view.Mode, source: view.Source, target: view.Target, key: view.Key},
		baseline: view.Weight,
	}
	s.mu.Unlock()
	return nil
}

// Revoke clears the approval and restores the edge weight recorded at
// approval time. Revoking an unapproved post only clears the flag.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	impact, ok := s.applied[id]
	delete(s.applied, id)
	s.mu.Unlock()

	if ok {
		_, err := s.graphs.UpdateEdge(impact.key.mode, impact.key.source, impact.key.target, graph.EdgeUpdate{
			Key:        impact.key.key,
			Weight:     &impact.baseline,
			Multiplier: 1.0,
		})
		if err != nil {
			return fmt.Errorf("reverting post impact: %w", err)
		}
	}

	return s.repo.SetApproved(ctx, id, false)
}

// Delete revokes any applied impact and removes the post.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Revoke(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.Delete(ctx, id)
}

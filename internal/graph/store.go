package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/krakflow/krakflow_core/internal/models"
	"github.com/krakflow/krakflow_core/internal/routing"
)

// EdgeUpdate carries the mutable parts of an update_edge call. Exactly one of
// Weight or SpeedKmh must be set; SpeedKmh only applies to edges that carry a
// distance. Multiplier and DistanceToPointKm are optional context echoed on
// the resulting event.
type EdgeUpdate struct {
	Key               string
	Weight            *float64
	SpeedKmh          *float64
	Multiplier        float64
	DistanceToPointKm float64
}

type modeGraph struct {
	mu      sync.RWMutex
	g       *Multigraph
	version uint64
}

// Store owns the mode graphs and serializes access to them. Each mode has its
// own reader-writer lock, so writes on different modes proceed in parallel
// while reads on one mode share it.
type Store struct {
	graphs  map[string]*modeGraph
	builder *Builder
	bus     *Bus

	parkingsMu sync.Mutex
	parkings   []models.BikeParking
}

// NewStore wraps built graphs. The builder is retained for bike graph
// rebuilds when parkings are loaded.
func NewStore(graphs map[string]*Multigraph, builder *Builder) *Store {
	store := &Store{
		graphs:  make(map[string]*modeGraph, len(graphs)),
		builder: builder,
		bus:     NewBus(),
	}
	for mode, g := range graphs {
		store.graphs[mode] = &modeGraph{g: g}
	}
	return store
}

// AvailableModes returns the mode labels in sorted order.
func (s *Store) AvailableModes() []string {
	modes := make([]string, 0, len(s.graphs))
	for mode := range s.graphs {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

func (s *Store) graphFor(mode string) (*modeGraph, error) {
	mg, ok := s.graphs[mode]
	if !ok {
		return nil, models.UnknownModeError(mode)
	}
	return mg, nil
}

// Version returns the mutation counter of a mode graph. It increments on
// every successful edge update or rebuild, which makes it a natural cache
// invalidation token.
func (s *Store) Version(mode string) uint64 {
	mg, err := s.graphFor(mode)
	if err != nil {
		return 0
	}
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return mg.version
}

// Snapshot serializes one mode graph, or all of them when mode is empty.
func (s *Store) Snapshot(mode string) (map[string]models.GraphPayload, error) {
	modes := s.AvailableModes()
	if mode != "" {
		if _, err := s.graphFor(mode); err != nil {
			return nil, err
		}
		modes = []string{mode}
	}

	payloads := make(map[string]models.GraphPayload, len(modes))
	for _, m := range modes {
		mg := s.graphs[m]
		mg.mu.RLock()
		payloads[m] = mg.g.Payload()
		mg.mu.RUnlock()
	}
	return payloads, nil
}

// UpdateEdge mutates one edge's weight and publishes the post-image as an
// edge_updated event. When update.Key is empty the first-inserted edge for
// the pair is chosen.
func (s *Store) UpdateEdge(mode, source, target string, update EdgeUpdate) (models.EdgeView, error) {
	mg, err := s.graphFor(mode)
	if err != nil {
		return models.EdgeView{}, err
	}

	mg.mu.Lock()
	defer mg.mu.Unlock()

	candidates := mg.g.EdgesBetween(source, target)
	if len(candidates) == 0 {
		return models.EdgeView{}, models.UnknownEdgeError(mode, source, target, update.Key, nil)
	}

	edge := candidates[0]
	if update.Key != "" {
		edge = mg.g.FindEdge(source, target, update.Key)
		if edge == nil {
			keys := make([]string, 0, len(candidates))
			for _, c := range candidates {
				keys = append(keys, c.Key)
			}
			return models.EdgeView{}, models.UnknownEdgeError(mode, source, target, update.Key, keys)
		}
	}

	weight, speed, err := resolveWeight(edge, update)
	if err != nil {
		return models.EdgeView{}, err
	}

	edge.Weight = weight
	if speed > 0 {
		edge.SpeedKmh = speed
	}
	mg.version++

	view := EdgeToView(edge)
	view.Multiplier = update.Multiplier
	view.DistanceToPointKm = update.DistanceToPointKm

	// Published under the write lock so event order matches mutation order.
	s.bus.Publish(models.Event{Type: models.EventEdgeUpdated, Edge: &view})

	return view, nil
}

func resolveWeight(edge *models.Edge, update EdgeUpdate) (weight, speedKmh float64, err error) {
	switch {
	case update.Weight != nil:
		weight = *update.Weight
	case update.SpeedKmh != nil:
		if edge.DistanceKm <= 0 {
			return 0, 0, models.ErrInvalidWeight
		}
		if *update.SpeedKmh <= 0 {
			return 0, 0, models.ErrInvalidWeight
		}
		speedKmh = *update.SpeedKmh
		weight = edge.DistanceKm / speedKmh * 3600
	default:
		return 0, 0, models.ErrInvalidWeight
	}

	if weight <= 0 {
		return 0, 0, models.ErrInvalidWeight
	}
	return weight, speedKmh, nil
}

// PlanRoute runs the incident-aware planner against a consistent view of the
// mode graph.
func (s *Store) PlanRoute(ctx context.Context, mode, source, target string) (models.RoutePlan, error) {
	mg, err := s.graphFor(mode)
	if err != nil {
		return models.RoutePlan{}, err
	}
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return routing.Plan(ctx, mg.g, source, target)
}

// LoadBikeParkings records the parking locations, reflags walking stops
// within radius, rebuilds the bike graph and broadcasts a full snapshot.
// A non-positive radius keeps the configured default.
func (s *Store) LoadBikeParkings(parkings []models.BikeParking, radiusM float64) error {
	walking, err := s.graphFor(models.ModeWalking)
	if err != nil {
		return err
	}
	bike, err := s.graphFor(models.ModeBike)
	if err != nil {
		return err
	}

	s.parkingsMu.Lock()
	s.parkings = parkings
	s.parkingsMu.Unlock()

	if radiusM > 0 {
		s.builder.BikeAccessRadiusM = radiusM
	}

	// Fixed lock order: walking before bike.
	walking.mu.Lock()
	s.builder.MarkBikeAccessible(walking.g, parkings)
	rebuilt := s.builder.BuildBikeGraph(walking.g)
	s.builder.ensureConnected(rebuilt)
	walking.version++
	walking.mu.Unlock()

	bike.mu.Lock()
	bike.g = rebuilt
	bike.version++
	bike.mu.Unlock()

	s.BroadcastSnapshot()
	return nil
}

// BikeParkings returns the last loaded parking set.
func (s *Store) BikeParkings() []models.BikeParking {
	s.parkingsMu.Lock()
	defer s.parkingsMu.Unlock()
	return s.parkings
}

// Subscribe registers a graph event subscriber.
func (s *Store) Subscribe() *Subscriber {
	return s.bus.Subscribe()
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(sub *Subscriber) {
	s.bus.Unsubscribe(sub)
}

// BroadcastSnapshot publishes a full snapshot of every mode graph.
func (s *Store) BroadcastSnapshot() {
	payloads, err := s.Snapshot("")
	if err != nil {
		return
	}
	s.bus.Publish(models.Event{Type: models.EventSnapshot, Graphs: payloads})
}

// SnapshotEvent returns the event a new subscriber should receive first.
func (s *Store) SnapshotEvent() models.Event {
	payloads, _ := s.Snapshot("")
	return models.Event{Type: models.EventSnapshot, Graphs: payloads}
}

// ModeStats summarizes one mode graph for diagnostics.
type ModeStats struct {
	Mode       string `json:"mode"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Components int    `json:"components"`
}

// Stats returns per-mode node/edge/component counts in mode order.
func (s *Store) Stats() []ModeStats {
	var stats []ModeStats
	for _, mode := range s.AvailableModes() {
		mg := s.graphs[mode]
		mg.mu.RLock()
		stats = append(stats, ModeStats{
			Mode:       mode,
			Nodes:      mg.g.NodeCount(),
			Edges:      mg.g.EdgeCount(),
			Components: len(mg.g.WeaklyConnectedComponents()),
		})
		mg.mu.RUnlock()
	}
	return stats
}

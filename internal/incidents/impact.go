package incidents

import (
	"context"
	"log"
	"time"

	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/models"
)

// alwaysOnFloor separates blocking multipliers from gated ones: a category
// whose multiplier is at least this large engages on a single report.
const alwaysOnFloor = 1e6

// CategoryRule maps an incident category onto an edge weight multiplier. A
// positive Threshold gates the rule behind aggregate reporter trust; zero
// means the rule engages on any report.
type CategoryRule struct {
	Multiplier float64
	Threshold  float64
}

// NewRules builds category rules from a plain category→multiplier map.
// Blocking multipliers engage immediately, everything else is gated behind
// trustThreshold.
func NewRules(multipliers map[string]float64, trustThreshold float64) map[string]CategoryRule {
	rules := make(map[string]CategoryRule, len(multipliers))
	for category, multiplier := range multipliers {
		threshold := trustThreshold
		if multiplier >= alwaysOnFloor {
			threshold = 0
		}
		rules[category] = CategoryRule{Multiplier: multiplier, Threshold: threshold}
	}
	return rules
}

// IncidentSource is the read side of the incident store the loop consumes.
type IncidentSource interface {
	List(ctx context.Context, filter ListFilter) ([]models.Incident, error)
}

// GraphMutator is the slice of the graph store the loop writes through.
type GraphMutator interface {
	ClosestTransitEdge(lat, lon float64) (models.EdgeView, error)
	UpdateEdge(mode, source, target string, update graph.EdgeUpdate) (models.EdgeView, error)
}

// EdgeKey identifies one edge across cycles.
type EdgeKey struct {
	Mode   string
	Source string
	Target string
	Key    string
}

// ImpactService periodically reads the incident store and keeps edge weights
// in sync with the active incident set. It is driven by a single goroutine;
// RunOnce is not safe for concurrent callers.
type ImpactService struct {
	incidents IncidentSource
	graphs    GraphMutator
	rules     map[string]CategoryRule
	interval  time.Duration

	// current multiplier and lazily captured baseline per impacted edge.
	current   map[EdgeKey]float64
	baselines map[EdgeKey]float64
}

// NewImpactService wires the loop. A non-positive interval falls back to one
// minute.
func NewImpactService(source IncidentSource, graphs GraphMutator, rules map[string]CategoryRule, interval time.Duration) *ImpactService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ImpactService{
		incidents: source,
		graphs:    graphs,
		rules:     rules,
		interval:  interval,
		current:   make(map[EdgeKey]float64),
		baselines: make(map[EdgeKey]float64),
	}
}

// Run executes impact cycles until the context is canceled. Each cycle is
// best-effort; a failed cycle leaves the previous targets applied.
func (s *ImpactService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		log.Printf("Incident impact cycle failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("Incident impact cycle failed: %v", err)
			}
		}
	}
}

type targetEntry struct {
	multiplier float64
	view       models.EdgeView
}

// RunOnce performs one fetch-diff-apply cycle. A fetch failure is returned
// without touching the graph so transient outages never cause spurious
// reverts.
func (s *ImpactService) RunOnce(ctx context.Context) error {
	reports, err := s.incidents.List(ctx, ListFilter{})
	if err != nil {
		return err
	}

	targets := s.computeTargets(reports)

	for key, target := range targets {
		applied := s.current[key]
		if applied == 0 {
			applied = 1.0
		}
		if target.multiplier == applied {
			continue
		}

		baseline, ok := s.baselines[key]
		if !ok {
			// Divide out whatever multiplier is already applied so restarts
			// and repeated impacts never compound.
			baseline = target.view.Weight / applied
		}

		weight := baseline * target.multiplier
		_, err := s.graphs.UpdateEdge(key.Mode, key.Source, key.Target, graph.EdgeUpdate{
			Key:               key.Key,
			Weight:            &weight,
			Multiplier:        target.multiplier,
			DistanceToPointKm: target.view.DistanceToPointKm,
		})
		if err != nil {
			log.Printf("Incident impact: updating edge %s/%s->%s failed: %v", key.Mode, key.Source, key.Target, err)
			continue
		}
		s.current[key] = target.multiplier
		s.baselines[key] = baseline
	}

	for key, applied := range s.current {
		if _, still := targets[key]; still || applied == 1.0 {
			continue
		}
		baseline := s.baselines[key]
		_, err := s.graphs.UpdateEdge(key.Mode, key.Source, key.Target, graph.EdgeUpdate{
			Key:        key.Key,
			Weight:     &baseline,
			Multiplier: 1.0,
		})
		if err != nil {
			log.Printf("Incident impact: reverting edge %s/%s->%s failed: %v", key.Mode, key.Source, key.Target, err)
			continue
		}
		delete(s.current, key)
		delete(s.baselines, key)
	}

	return nil
}

// computeTargets resolves each report to its nearest transit edge and decides
// the multiplier every edge should carry: the maximum over engaged category
// rules, where a gated rule engages when the summed trust of unapproved
// reports reaches the threshold or any report of that category is approved.
func (s *ImpactService) computeTargets(reports []models.Incident) map[EdgeKey]targetEntry {
	type categoryState struct {
		unapprovedTrust float64
		approved        bool
	}
	perEdge := make(map[EdgeKey]map[string]*categoryState)
	views := make(map[EdgeKey]models.EdgeView)

	for _, report := range reports {
		if _, known := s.rules[report.Category]; !known {
			continue
		}
		view, err := s.graphs.ClosestTransitEdge(report.Latitude, report.Longitude)
		if err != nil {
			log.Printf("Incident impact: no transit edge for report %s: %v", report.ID, err)
			continue
		}
		key := EdgeKey{Mode: view.Mode, Source: view.Source, Target: view.Target, Key: view.Key}
		views[key] = view

		if perEdge[key] == nil {
			perEdge[key] = make(map[string]*categoryState)
		}
		state := perEdge[key][report.Category]
		if state == nil {
			state = &categoryState{}
			perEdge[key][report.Category] = state
		}
		if report.Approved {
			state.approved = true
		} else {
			state.unapprovedTrust += report.ReporterSocialScore
		}
	}

	targets := make(map[EdgeKey]targetEntry)
	for key, categories := range perEdge {
		best := 1.0
		for category, state := range categories {
			rule := s.rules[category]
			engaged := rule.Threshold <= 0 ||
				state.approved ||
				state.unapprovedTrust >= rule.Threshold
			if engaged && rule.Multiplier > best {
				best = rule.Multiplier
			}
		}
		if best > 1.0 {
			targets[key] = targetEntry{multiplier: best, view: views[key]}
		}
	}
	return targets
}

package graph

import (
	"github.com/krakflow/krakflow_core/internal/geo"
	"github.com/krakflow/krakflow_core/internal/models"
)

// ClosestTransitEdge returns the transit edge whose endpoint midpoint lies
// nearest to the coordinate. Walking and bike graphs never qualify. The view
// carries the distance from the point to the midpoint in kilometres.
//
// A linear scan over all transit edges is adequate for city-scale feeds; the
// graphs are read-locked one mode at a time.
func (s *Store) ClosestTransitEdge(lat, lon float64) (models.EdgeView, error) {
	bestDist := -1.0
	var best models.EdgeView

	for _, mode := range s.AvailableModes() {
		if mode == models.ModeWalking || mode == models.ModeBike {
			continue
		}
		mg := s.graphs[mode]
		mg.mu.RLock()
		mg.g.Edges(func(e *models.Edge) bool {
			from := mg.g.Node(e.Source)
			to := mg.g.Node(e.Target)
			if from == nil || to == nil {
				return true
			}
			midLat, midLon := geo.Midpoint(from.Lat, from.Lon, to.Lat, to.Lon)
			d := geo.HaversineKm(lat, lon, midLat, midLon)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best = EdgeToView(e)
			}
			return true
		})
		mg.mu.RUnlock()
	}

	if bestDist < 0 {
		return models.EdgeView{}, models.ErrNoTransitEdges
	}
	best.DistanceToPointKm = bestDist
	return best, nil
}

// UpdateClosestTransitEdge finds the nearest transit edge to the coordinate
// and sets its weight. The emitted event carries the lookup distance.
func (s *Store) UpdateClosestTransitEdge(lat, lon, weight float64) (models.EdgeView, error) {
	nearest, err := s.ClosestTransitEdge(lat, lon)
	if err != nil {
		return models.EdgeView{}, err
	}
	return s.UpdateEdge(nearest.Mode, nearest.Source, nearest.Target, EdgeUpdate{
		Key:               nearest.Key,
		Weight:            &weight,
		DistanceToPointKm: nearest.DistanceToPointKm,
	})
}

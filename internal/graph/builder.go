package graph

import (
	"fmt"
	"log"
	"sort"

	"github.com/krakflow/krakflow_core/internal/geo"
	"github.com/krakflow/krakflow_core/internal/gtfs"
	"github.com/krakflow/krakflow_core/internal/models"
)

const (
	// connectorKey labels the synthetic edges inserted by connectivity repair.
	connectorKey = "connector"
	// walkKey labels the walking/bike edges derived from transit adjacency.
	walkKey = "walk"

	// defaultConnectorSpeedKmh is the assumed speed of connector edges in
	// transit graphs, roughly an urban tram/bus average.
	defaultConnectorSpeedKmh = 30.0
)

// Builder derives the per-mode graphs from a parsed GTFS feed.
type Builder struct {
	WalkingSpeedKmh   float64
	BikeSpeedKmh      float64
	BikeAccessRadiusM float64
	ConnectorSpeedKmh float64
}

// NewBuilder returns a Builder with the default speeds.
func NewBuilder() *Builder {
	return &Builder{
		WalkingSpeedKmh:   5.0,
		BikeSpeedKmh:      20.0,
		BikeAccessRadiusM: 150.0,
		ConnectorSpeedKmh: defaultConnectorSpeedKmh,
	}
}

// Build constructs one graph per transit mode present in the feed plus the
// walking and bike graphs, and repairs connectivity on each. Bike parkings
// are applied later through MarkBikeAccessible and a bike graph rebuild.
func (b *Builder) Build(feed *gtfs.Feed) (map[string]*Multigraph, error) {
	stops := make(map[string]gtfs.Stop, len(feed.Stops))
	for _, stop := range feed.Stops {
		stops[stop.ID] = stop
	}
	routes := make(map[string]gtfs.Route, len(feed.Routes))
	for _, route := range feed.Routes {
		routes[route.ID] = route
	}

	graphs := b.buildTransitGraphs(feed, stops, routes)
	if len(graphs) == 0 {
		return nil, fmt.Errorf("%w: feed produced no transit edges", models.ErrFeedInvalid)
	}

	walking := b.buildWalkingGraph(graphs, stops)
	graphs[models.ModeWalking] = walking
	graphs[models.ModeBike] = b.BuildBikeGraph(walking)

	for _, mode := range sortedModes(graphs) {
		b.ensureConnected(graphs[mode])
	}

	return graphs, nil
}

func (b *Builder) buildTransitGraphs(feed *gtfs.Feed, stops map[string]gtfs.Stop, routes map[string]gtfs.Route) map[string]*Multigraph {
	stopTimesByTrip := make(map[string][]gtfs.StopTime)
	for _, st := range feed.StopTimes {
		stopTimesByTrip[st.TripID] = append(stopTimesByTrip[st.TripID], st)
	}

	graphs := make(map[string]*Multigraph)
	skipped := 0

	for _, trip := range feed.Trips {
		route, ok := routes[trip.RouteID]
		if !ok {
			continue
		}
		sequence := stopTimesByTrip[trip.ID]
		if len(sequence) < 2 {
			continue
		}
		sort.SliceStable(sequence, func(i, j int) bool {
			return sequence[i].StopSequence < sequence[j].StopSequence
		})

		mode := gtfs.RouteTypeLabel(route.Type)
		g, ok := graphs[mode]
		if !ok {
			g = NewMultigraph(mode)
			graphs[mode] = g
		}

		for i := 0; i < len(sequence)-1; i++ {
			from, to := sequence[i], sequence[i+1]
			fromStop, okFrom := stops[from.StopID]
			toStop, okTo := stops[to.StopID]
			if !okFrom || !okTo {
				continue
			}

			duration := stopTimeSeconds(to) - stopTimeSeconds(from)
			if stopTimeSeconds(from) < 0 || stopTimeSeconds(to) < 0 || duration <= 0 {
				skipped++
				continue
			}

			addStopNode(g, fromStop)
			addStopNode(g, toStop)

			distance := geo.HaversineKm(fromStop.Lat, fromStop.Lon, toStop.Lat, toStop.Lon)
			g.AddEdge(&models.Edge{
				Source:         from.StopID,
				Target:         to.StopID,
				Key:            trip.ID,
				Weight:         duration,
				DefaultWeight:  duration,
				DistanceKm:     distance,
				SpeedKmh:       segmentSpeedKmh(distance, duration),
				TripID:         trip.ID,
				RouteID:        route.ID,
				RouteShortName: route.ShortName,
				RouteLongName:  route.LongName,
			})
		}
	}

	if skipped > 0 {
		log.Printf("Graph builder: skipped %d non-positive transit segments", skipped)
	}
	return graphs
}

// buildWalkingGraph connects every unordered stop pair that any transit
// segment connects, keeping the minimum-weight payload per pair, and
// materializes each pair as two directed edges at walking speed.
func (b *Builder) buildWalkingGraph(transit map[string]*Multigraph, stops map[string]gtfs.Stop) *Multigraph {
	type pairEdge struct {
		a, b   string
		weight float64
	}
	best := make(map[string]pairEdge)
	var order []string

	for _, mode := range sortedModes(transit) {
		transit[mode].Edges(func(e *models.Edge) bool {
			a, bID := e.Source, e.Target
			if bID < a {
				a, bID = bID, a
			}
			pairID := a + "\x00" + bID

			fromStop, okFrom := stops[a]
			toStop, okTo := stops[bID]
			if !okFrom || !okTo {
				return true
			}
			weight := geo.TravelTimeSeconds(
				geo.HaversineKm(fromStop.Lat, fromStop.Lon, toStop.Lat, toStop.Lon),
				b.WalkingSpeedKmh,
			)
			if existing, ok := best[pairID]; !ok {
				best[pairID] = pairEdge{a: a, b: bID, weight: weight}
				order = append(order, pairID)
			} else if weight < existing.weight {
				best[pairID] = pairEdge{a: a, b: bID, weight: weight}
			}
			return true
		})
	}

	walking := NewMultigraph(models.ModeWalking)
	for _, pairID := range order {
		pair := best[pairID]
		fromStop := stops[pair.a]
		toStop := stops[pair.b]
		addStopNode(walking, fromStop)
		addStopNode(walking, toStop)

		distance := geo.HaversineKm(fromStop.Lat, fromStop.Lon, toStop.Lat, toStop.Lon)
		for _, dir := range [][2]string{{pair.a, pair.b}, {pair.b, pair.a}} {
			walking.AddEdge(&models.Edge{
				Source:        dir[0],
				Target:        dir[1],
				Key:           walkKey,
				Weight:        pair.weight,
				DefaultWeight: pair.weight,
				DistanceKm:    distance,
				SpeedKmh:      b.WalkingSpeedKmh,
			})
		}
	}
	return walking
}

// BuildBikeGraph copies the walking topology. Edges whose endpoints are both
// bike accessible are re-weighted at bike speed; the rest keep walking speed.
// It is called at build time and again whenever bike parkings are reloaded.
func (b *Builder) BuildBikeGraph(walking *Multigraph) *Multigraph {
	bike := NewMultigraph(models.ModeBike)
	for _, id := range walking.NodeIDs() {
		stop := walking.Node(id)
		clone := *stop
		bike.AddNode(&clone)
	}
	walking.Edges(func(e *models.Edge) bool {
		speed := b.WalkingSpeedKmh
		if bike.Node(e.Source).BikeAccessible && bike.Node(e.Target).BikeAccessible {
			speed = b.BikeSpeedKmh
		}
		weight := geo.TravelTimeSeconds(e.DistanceKm, speed)
		bike.AddEdge(&models.Edge{
			Source:        e.Source,
			Target:        e.Target,
			Key:           e.Key,
			Weight:        weight,
			DefaultWeight: weight,
			DistanceKm:    e.DistanceKm,
			SpeedKmh:      speed,
			Connector:     e.Connector,
		})
		return true
	})
	return bike
}

// MarkBikeAccessible flags the walking graph's stops that lie within the
// access radius of any parking. The bike graph is rebuilt from the walking
// graph afterwards so the flags take effect.
func (b *Builder) MarkBikeAccessible(walking *Multigraph, parkings []models.BikeParking) int {
	radiusKm := b.BikeAccessRadiusM / 1000.0
	accessible := 0
	for _, id := range walking.NodeIDs() {
		stop := walking.Node(id)
		stop.BikeAccessible = false
		for _, parking := range parkings {
			if geo.HaversineKm(stop.Lat, stop.Lon, parking.Latitude, parking.Longitude) <= radiusKm {
				stop.BikeAccessible = true
				accessible++
				break
			}
		}
	}
	return accessible
}

// ensureConnected joins a fragmented graph by repeatedly connecting the first
// weakly connected component to the geographically nearest node of any other
// component with a pair of symmetric connector edges.
func (b *Builder) ensureConnected(g *Multigraph) {
	for {
		components := g.WeaklyConnectedComponents()
		if len(components) <= 1 {
			return
		}

		base := components[0]
		bestDist := -1.0
		var bestFrom, bestTo string
		for _, component := range components[1:] {
			for _, fromID := range base {
				from := g.Node(fromID)
				if from == nil {
					continue
				}
				for _, toID := range component {
					to := g.Node(toID)
					if to == nil {
						continue
					}
					d := geo.HaversineKm(from.Lat, from.Lon, to.Lat, to.Lon)
					if bestDist < 0 || d < bestDist {
						bestDist = d
						bestFrom = fromID
						bestTo = toID
					}
				}
			}
		}
		if bestDist < 0 {
			log.Printf("Graph %s: cannot repair connectivity, no candidate nodes with coordinates", g.Mode())
			return
		}

		speed := b.connectorSpeed(g.Mode())
		weight := geo.TravelTimeSeconds(bestDist, speed)
		for _, dir := range [][2]string{{bestFrom, bestTo}, {bestTo, bestFrom}} {
			g.AddEdge(&models.Edge{
				Source:        dir[0],
				Target:        dir[1],
				Key:           connectorKey,
				Weight:        weight,
				DefaultWeight: weight,
				DistanceKm:    bestDist,
				SpeedKmh:      speed,
				Connector:     true,
			})
		}
	}
}

func (b *Builder) connectorSpeed(mode string) float64 {
	switch mode {
	case models.ModeWalking:
		return b.WalkingSpeedKmh
	case models.ModeBike:
		return b.BikeSpeedKmh
	default:
		return b.ConnectorSpeedKmh
	}
}

func addStopNode(g *Multigraph, stop gtfs.Stop) {
	if g.HasNode(stop.ID) {
		return
	}
	g.AddNode(&models.Stop{ID: stop.ID, Name: stop.Name, Lat: stop.Lat, Lon: stop.Lon})
}

func stopTimeSeconds(st gtfs.StopTime) float64 {
	if st.ArrivalSeconds >= 0 {
		return st.ArrivalSeconds
	}
	return st.DepartureSeconds
}

func segmentSpeedKmh(distanceKm, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return distanceKm / (durationSeconds / 3600)
}

func sortedModes(graphs map[string]*Multigraph) []string {
	modes := make([]string, 0, len(graphs))
	for mode := range graphs {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// Package graph holds the in-memory multimodal transport graphs: the typed
// multigraph, the builder that derives mode graphs from a GTFS feed, the
// store guarding concurrent access, the nearest-edge index, and the event bus
// feeding graph stream subscribers.
package graph

import (
	"github.com/krakflow/krakflow_core/internal/models"
)

// Multigraph is a directed graph that allows parallel edges between the same
// node pair, distinguished by edge key. Node and edge iteration follow
// insertion order so repeated traversals are deterministic.
//
// Multigraph itself is not safe for concurrent use; the Store serializes
// access per mode.
type Multigraph struct {
	mode    string
	nodes   map[string]*models.Stop
	nodeIDs []string
	adj     map[string][]*models.Edge
	edges   int
}

// NewMultigraph returns an empty graph for the given mode label.
func NewMultigraph(mode string) *Multigraph {
	return &Multigraph{
		mode:  mode,
		nodes: make(map[string]*models.Stop),
		adj:   make(map[string][]*models.Edge),
	}
}

// Mode returns the mode label the graph was built for.
func (g *Multigraph) Mode() string {
	return g.mode
}

// AddNode registers a stop. Re-adding an existing id replaces the stop record
// but keeps its position in iteration order.
func (g *Multigraph) AddNode(stop *models.Stop) {
	if _, exists := g.nodes[stop.ID]; !exists {
		g.nodeIDs = append(g.nodeIDs, stop.ID)
	}
	g.nodes[stop.ID] = stop
}

// HasNode reports whether the node id is present.
func (g *Multigraph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the stop record for an id, or nil.
func (g *Multigraph) Node(id string) *models.Stop {
	return g.nodes[id]
}

// NodeIDs returns all node ids in insertion order. The returned slice is
// shared; callers must not mutate it.
func (g *Multigraph) NodeIDs() []string {
	return g.nodeIDs
}

// AddEdge inserts a directed edge. Both endpoints must already be nodes;
// unknown endpoints are registered implicitly with no stop record only when
// allowed by the caller having added them, so the builder always adds nodes
// first.
func (g *Multigraph) AddEdge(edge *models.Edge) {
	edge.Mode = g.mode
	g.adj[edge.Source] = append(g.adj[edge.Source], edge)
	g.edges++
}

// OutEdges returns the edges leaving source in insertion order.
func (g *Multigraph) OutEdges(source string) []*models.Edge {
	return g.adj[source]
}

// OutNeighbors returns the distinct targets reachable from source, ordered by
// first edge insertion.
func (g *Multigraph) OutNeighbors(source string) []string {
	seen := make(map[string]bool)
	var targets []string
	for _, e := range g.adj[source] {
		if !seen[e.Target] {
			seen[e.Target] = true
			targets = append(targets, e.Target)
		}
	}
	return targets
}

// EdgesBetween returns the parallel edges from source to target in insertion
// order.
func (g *Multigraph) EdgesBetween(source, target string) []*models.Edge {
	var out []*models.Edge
	for _, e := range g.adj[source] {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}

// FindEdge returns the edge with the given key between source and target, or
// nil when absent.
func (g *Multigraph) FindEdge(source, target, key string) *models.Edge {
	for _, e := range g.adj[source] {
		if e.Target == target && e.Key == key {
			return e
		}
	}
	return nil
}

// Edges calls fn for every edge in the graph, in node then edge insertion
// order. Iteration stops early when fn returns false.
func (g *Multigraph) Edges(fn func(*models.Edge) bool) {
	for _, id := range g.nodeIDs {
		for _, e := range g.adj[id] {
			if !fn(e) {
				return
			}
		}
	}
}

// NodeCount returns the number of nodes.
func (g *Multigraph) NodeCount() int {
	return len(g.nodeIDs)
}

// EdgeCount returns the number of directed edges, counting parallels.
func (g *Multigraph) EdgeCount() int {
	return g.edges
}

// WeaklyConnectedComponents returns the node ids of each weakly connected
// component. Components are ordered by their earliest-inserted node, and the
// nodes within a component appear in insertion order.
func (g *Multigraph) WeaklyConnectedComponents() [][]string {
	undirected := make(map[string][]string, len(g.nodes))
	for _, id := range g.nodeIDs {
		for _, e := range g.adj[id] {
			undirected[e.Source] = append(undirected[e.Source], e.Target)
			undirected[e.Target] = append(undirected[e.Target], e.Source)
		}
	}

	visited := make(map[string]bool, len(g.nodes))
	var components [][]string
	for _, start := range g.nodeIDs {
		if visited[start] {
			continue
		}
		component := []string{}
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			component = append(component, id)
			for _, next := range undirected[id] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		components = append(components, component)
	}
	return components
}

// Payload serializes the graph into its wire form.
func (g *Multigraph) Payload() models.GraphPayload {
	payload := models.GraphPayload{
		Mode:  g.mode,
		Nodes: make([]models.NodeView, 0, len(g.nodeIDs)),
		Edges: make([]models.EdgeView, 0, g.edges),
	}
	for _, id := range g.nodeIDs {
		stop := g.nodes[id]
		payload.Nodes = append(payload.Nodes, models.NodeView{
			ID:             stop.ID,
			Latitude:       stop.Lat,
			Longitude:      stop.Lon,
			BikeAccessible: stop.BikeAccessible,
			StopName:       stop.Name,
		})
	}
	g.Edges(func(e *models.Edge) bool {
		payload.Edges = append(payload.Edges, EdgeToView(e))
		return true
	})
	return payload
}

// EdgeToView converts an edge to its wire form without context fields.
func EdgeToView(e *models.Edge) models.EdgeView {
	return models.EdgeView{
		Mode:           e.Mode,
		Source:         e.Source,
		Target:         e.Target,
		Key:            e.Key,
		Weight:         e.Weight,
		DefaultWeight:  e.DefaultWeight,
		DistanceKm:     e.DistanceKm,
		SpeedKmh:       e.SpeedKmh,
		Connector:      e.Connector,
		TripID:         e.TripID,
		RouteID:        e.RouteID,
		RouteShortName: e.RouteShortName,
		RouteLongName:  e.RouteLongName,
	}
}

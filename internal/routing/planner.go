// Package routing implements the incident-aware shortest path planner. It
// depends only on a minimal graph interface so it can run against the live
// store's graphs and against small fixtures in tests.
package routing

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/krakflow/krakflow_core/internal/models"
)

// MultiGraph is the read surface the planner needs. EdgesBetween returns the
// parallel edges for a pair in a deterministic order.
type MultiGraph interface {
	HasNode(id string) bool
	OutNeighbors(source string) []string
	EdgesBetween(source, target string) []*models.Edge
}

// Messages returned on a RoutePlan.
const (
	MessageNoIncidents   = "no incidents detected along the route"
	MessageAlternative   = "incident detected along the route, alternative route suggested"
	MessageNoAlternative = "incident detected along the route, no unaffected alternative found"
)

// Plan computes the baseline shortest path between source and target and,
// when the baseline crosses impacted edges, a second path over the subgraph
// with impacted edges removed. Both searches rank edges by default weight so
// the suggestion is the route riders would normally take, not a cost-inflated
// one.
func Plan(ctx context.Context, g MultiGraph, source, target string) (models.RoutePlan, error) {
	if !g.HasNode(source) {
		return models.RoutePlan{}, fmt.Errorf("%w: %q", models.ErrUnknownNode, source)
	}
	if !g.HasNode(target) {
		return models.RoutePlan{}, fmt.Errorf("%w: %q", models.ErrUnknownNode, target)
	}

	defaultNodes, err := shortestPath(ctx, g, source, target, false)
	if err != nil {
		return models.RoutePlan{}, err
	}
	if defaultNodes == nil {
		return models.RoutePlan{}, fmt.Errorf("%w: %s -> %s", models.ErrNoPath, source, target)
	}

	defaultPath := materialize(g, defaultNodes, false)
	plan := models.RoutePlan{
		DefaultPath: defaultPath,
		Message:     MessageNoIncidents,
	}

	impacted := false
	for _, segment := range defaultPath.Segments {
		if segment.Impacted {
			impacted = true
			break
		}
	}
	if !impacted {
		return plan, nil
	}

	plan.IncidentDetected = true
	plan.Message = MessageNoAlternative

	altNodes, err := shortestPath(ctx, g, source, target, true)
	if err != nil {
		return models.RoutePlan{}, err
	}
	if altNodes != nil && !sameNodes(altNodes, defaultNodes) {
		alt := materialize(g, altNodes, true)
		plan.SuggestedPath = &alt
		plan.Message = MessageAlternative
	}
	return plan, nil
}

// bestEdge picks the minimum-default-weight edge for a pair, first-inserted
// on ties. With skipImpacted set, impacted edges do not qualify.
func bestEdge(g MultiGraph, source, target string, skipImpacted bool) *models.Edge {
	var best *models.Edge
	for _, e := range g.EdgesBetween(source, target) {
		if skipImpacted && e.Impacted() {
			continue
		}
		if best == nil || e.DefaultWeight < best.DefaultWeight {
			best = e
		}
	}
	return best
}

type pqItem struct {
	node  string
	dist  float64
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *priorityQueue) Push(x interface{}) { item := x.(*pqItem); item.index = len(*pq); *pq = append(*pq, item) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// shortestPath runs Dijkstra over default weights and returns the node
// sequence, or nil when target is unreachable.
func shortestPath(ctx context.Context, g MultiGraph, source, target string, skipImpacted bool) ([]string, error) {
	dist := map[string]float64{source: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := priorityQueue{{node: source, dist: 0}}
	heap.Init(&pq)

	for pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := heap.Pop(&pq).(*pqItem)
		if visited[current.node] {
			continue
		}
		visited[current.node] = true
		if current.node == target {
			break
		}

		for _, neighbor := range g.OutNeighbors(current.node) {
			if visited[neighbor] {
				continue
			}
			edge := bestEdge(g, current.node, neighbor, skipImpacted)
			if edge == nil {
				continue
			}
			candidate := current.dist + edge.DefaultWeight
			if known, ok := dist[neighbor]; !ok || candidate < known {
				dist[neighbor] = candidate
				prev[neighbor] = current.node
				heap.Push(&pq, &pqItem{node: neighbor, dist: candidate})
			}
		}
	}

	if !visited[target] {
		return nil, nil
	}

	var nodes []string
	for at := target; ; {
		nodes = append([]string{at}, nodes...)
		if at == source {
			break
		}
		at = prev[at]
	}
	return nodes, nil
}

// materialize turns a node sequence into per-segment detail and totals under
// both weightings, using the same edge selection rule as the search.
func materialize(g MultiGraph, nodes []string, skipImpacted bool) models.PathDetail {
	detail := models.PathDetail{Nodes: nodes}
	for i := 0; i < len(nodes)-1; i++ {
		edge := bestEdge(g, nodes[i], nodes[i+1], skipImpacted)
		if edge == nil {
			continue
		}
		detail.Segments = append(detail.Segments, models.RouteSegment{
			Source:         edge.Source,
			Target:         edge.Target,
			Key:            edge.Key,
			Mode:           edge.Mode,
			DefaultWeight:  edge.DefaultWeight,
			CurrentWeight:  edge.Weight,
			Impacted:       edge.Impacted(),
			Connector:      edge.Connector,
			TripID:         edge.TripID,
			RouteID:        edge.RouteID,
			RouteShortName: edge.RouteShortName,
			RouteLongName:  edge.RouteLongName,
		})
		detail.TotalDefaultWeight += edge.DefaultWeight
		detail.TotalCurrentWeight += edge.Weight
	}
	return detail
}

func sameNodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

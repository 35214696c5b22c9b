package models

import "time"

// Mode labels for graphs that are always present regardless of the GTFS feed.
// Transit mode labels are derived from route_type at load time and may include
// synthetic labels such as "route_type_42" for unknown types.
const (
	ModeWalking = "walking"
	ModeBike    = "bike"
)

// Stop is a transit stop node shared by every mode graph. Stops are immutable
// after the feed is loaded, except for the derived BikeAccessible flag which
// is recomputed when bike parkings change.
type Stop struct {
	ID             string
	Name           string
	Lat            float64
	Lon            float64
	BikeAccessible bool
}

// Edge is a directed, keyed edge in a mode graph. The same source/target pair
// may carry several parallel edges distinguished by Key (trip id for transit
// segments, synthetic keys for walking/bike/connector edges).
//
// DefaultWeight is the baseline traversal cost in seconds and never changes
// after graph construction. Weight is the current effective cost and is the
// only mutable field besides SpeedKmh.
type Edge struct {
	Mode           string
	Source         string
	Target         string
	Key            string
	Weight         float64
	DefaultWeight  float64
	DistanceKm     float64
	SpeedKmh       float64
	Connector      bool
	TripID         string
	RouteID        string
	RouteShortName string
	RouteLongName  string
}

// ImpactEpsilon is the tolerance used when deciding whether an edge's current
// weight deviates from its baseline.
const ImpactEpsilon = 1e-6

// Impacted reports whether the edge currently carries an incident surcharge.
func (e *Edge) Impacted() bool {
	return e.Weight-e.DefaultWeight > ImpactEpsilon
}

// EdgeView is the wire representation of an edge, shared verbatim between
// HTTP responses and WebSocket frames. Context fields (Multiplier,
// DistanceToPointKm) are only present on events that carry them.
type EdgeView struct {
	Mode              string  `json:"mode"`
	Source            string  `json:"source"`
	Target            string  `json:"target"`
	Key               string  `json:"key"`
	Weight            float64 `json:"weight"`
	DefaultWeight     float64 `json:"default_weight,omitempty"`
	DistanceKm        float64 `json:"distance_km,omitempty"`
	SpeedKmh          float64 `json:"speed_kmh,omitempty"`
	Connector         bool    `json:"connector,omitempty"`
	TripID            string  `json:"trip_id,omitempty"`
	RouteID           string  `json:"route_id,omitempty"`
	RouteShortName    string  `json:"route_short_name,omitempty"`
	RouteLongName     string  `json:"route_long_name,omitempty"`
	Multiplier        float64 `json:"multiplier,omitempty"`
	DistanceToPointKm float64 `json:"distance_to_point_km,omitempty"`
}

// NodeView is the wire representation of a stop.
type NodeView struct {
	ID             string  `json:"id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	BikeAccessible bool    `json:"bike_accessible"`
	StopName       string  `json:"stop_name,omitempty"`
}

// GraphPayload is a serialized snapshot of a single mode graph.
type GraphPayload struct {
	Mode  string     `json:"mode"`
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

// Event is a message delivered to graph stream subscribers. Type is either
// "snapshot" (Graphs populated) or "edge_updated" (Edge populated).
type Event struct {
	Type   string                  `json:"type"`
	Graphs map[string]GraphPayload `json:"graphs,omitempty"`
	Edge   *EdgeView               `json:"edge,omitempty"`
}

const (
	EventSnapshot    = "snapshot"
	EventEdgeUpdated = "edge_updated"
)

// RouteSegment describes one hop of a planned route with both its baseline
// and current cost.
type RouteSegment struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	Key            string  `json:"key"`
	Mode           string  `json:"mode"`
	DefaultWeight  float64 `json:"default_weight"`
	CurrentWeight  float64 `json:"current_weight"`
	Impacted       bool    `json:"impacted"`
	Connector      bool    `json:"connector,omitempty"`
	TripID         string  `json:"trip_id,omitempty"`
	RouteID        string  `json:"route_id,omitempty"`
	RouteShortName string  `json:"route_short_name,omitempty"`
	RouteLongName  string  `json:"route_long_name,omitempty"`
}

// PathDetail is a fully materialized path: the node sequence, per-segment
// detail, and totals under both weightings.
type PathDetail struct {
	Nodes              []string       `json:"nodes"`
	Segments           []RouteSegment `json:"segments"`
	TotalDefaultWeight float64        `json:"total_default_weight"`
	TotalCurrentWeight float64        `json:"total_current_weight"`
}

// RoutePlan is the response of the incident-aware route planner. SuggestedPath
// is nil when the default path is unaffected or no alternative exists.
type RoutePlan struct {
	IncidentDetected bool        `json:"incident_detected"`
	DefaultPath      PathDetail  `json:"default_path"`
	SuggestedPath    *PathDetail `json:"suggested_path"`
	Message          string      `json:"message"`
}

// BikeParking is a geolocated bike parking facility.
type BikeParking struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// Incident is a rider- or moderator-reported disruption.
type Incident struct {
	ID                  string    `json:"id"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	Description         string    `json:"description"`
	Category            string    `json:"category"`
	Username            string    `json:"username"`
	Approved            bool      `json:"approved"`
	ReporterSocialScore float64   `json:"reporter_social_score"`
	CreatedAt           time.Time `json:"created_at"`
}

// Post is a moderated social-media report whose approval adjusts the nearest
// transit edge.
type Post struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	StopName    string    `json:"stop_name,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

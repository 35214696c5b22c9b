package api

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/krakflow/krakflow_core/internal/cache"
	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/incidents"
	"github.com/krakflow/krakflow_core/internal/models"
	"github.com/krakflow/krakflow_core/internal/posts"
)

// Handler carries the collaborators the HTTP surface needs. Incidents, Posts
// and Plans may be nil when their backing services are not configured; the
// affected routes then answer 503.
type Handler struct {
	Store     *graph.Store
	Incidents incidents.Repository
	Posts     *posts.Service
	Plans     *cache.PlanCache
}

// NewHandler wires the HTTP surface.
func NewHandler(store *graph.Store, incidentRepo incidents.Repository, postService *posts.Service, plans *cache.PlanCache) *Handler {
	return &Handler{Store: store, Incidents: incidentRepo, Posts: postService, Plans: plans}
}

// Register mounts every route on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	transport := app.Group("/transport")
	transport.Get("/modes", h.Modes)
	transport.Get("/graphs", h.Graphs)
	transport.Get("/routes", h.PlanRoute)
	transport.Patch("/graphs/nearest", h.UpdateNearestEdge)
	transport.Post("/graphs/nearest/lookup", h.NearestLookup)
	transport.Patch("/graphs/:mode/edges/:source/:target", h.UpdateEdge)
	transport.Get("/visualizer", h.Visualizer)
	h.registerStream(transport)

	incidentAPI := app.Group("/api/v1/incidents")
	incidentAPI.Post("/", h.CreateIncident)
	incidentAPI.Get("/", h.ListIncidents)

	incidentAdmin := app.Group("/admin/incidents/api")
	incidentAdmin.Get("/", h.ListIncidents)
	incidentAdmin.Post("/:id/approve", h.ApproveIncident)
	incidentAdmin.Post("/:id/revoke", h.RevokeIncident)
	incidentAdmin.Delete("/:id", h.DeleteIncident)
	incidentAdmin.Delete("/", h.BulkDeleteIncidents)

	postAPI := app.Group("/api/v1/posts")
	postAPI.Post("/", h.CreatePost)
	postAPI.Get("/", h.ListPosts)

	postAdmin := app.Group("/admin/posts/api")
	postAdmin.Post("/:id/approve", h.ApprovePost)
	postAdmin.Post("/:id/revoke", h.RevokePost)
	postAdmin.Delete("/:id", h.DeletePost)
}

// statusForErr maps engine errors onto HTTP status codes.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownMode),
		errors.Is(err, models.ErrUnknownEdge),
		errors.Is(err, models.ErrNoTransitEdges),
		errors.Is(err, incidents.ErrNotFound),
		errors.Is(err, posts.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidWeight),
		errors.Is(err, models.ErrUnknownNode),
		errors.Is(err, models.ErrNoPath):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := statusForErr(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("Internal error on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// Health reports liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"modes":  h.Store.AvailableModes(),
	})
}

// Modes lists the available graph modes.
func (h *Handler) Modes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"modes": h.Store.AvailableModes()})
}

// Graphs returns the serialized snapshot of one mode, or all modes when the
// mode query parameter is absent.
func (h *Handler) Graphs(c *fiber.Ctx) error {
	payloads, err := h.Store.Snapshot(c.Query("mode"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"graphs": payloads})
}

// PlanRoute runs the incident-aware planner, consulting the plan cache first.
func (h *Handler) PlanRoute(c *fiber.Ctx) error {
	mode := c.Query("mode")
	source := c.Query("source")
	target := c.Query("target")
	if mode == "" || source == "" || target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing required parameters: mode, source and target",
		})
	}

	ctx := c.Context()
	key := cache.Key(mode, source, target, h.Store.Version(mode))
	if cached, err := h.Plans.Get(ctx, key); err == nil && cached != nil {
		return c.JSON(cached)
	}

	plan, err := h.Store.PlanRoute(ctx, mode, source, target)
	if err != nil {
		return errorJSON(c, err)
	}

	if err := h.Plans.Set(ctx, key, &plan); err != nil {
		log.Printf("Plan cache write failed: %v", err)
	}
	return c.JSON(plan)
}

type updateEdgeRequest struct {
	Key      string   `json:"key"`
	Weight   *float64 `json:"weight"`
	SpeedKmh *float64 `json:"speed_kmh"`
}

// UpdateEdge mutates one edge's weight.
func (h *Handler) UpdateEdge(c *fiber.Ctx) error {
	var req updateEdgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}

	view, err := h.Store.UpdateEdge(c.Params("mode"), c.Params("source"), c.Params("target"), graph.EdgeUpdate{
		Key:      req.Key,
		Weight:   req.Weight,
		SpeedKmh: req.SpeedKmh,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"edge": view})
}

type coordinateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Weight    *float64 `json:"weight"`
}

func (r *coordinateRequest) validCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil &&
		*r.Latitude >= -90 && *r.Latitude <= 90 &&
		*r.Longitude >= -180 && *r.Longitude <= 180
}

// NearestLookup returns the transit edge closest to a coordinate.
func (h *Handler) NearestLookup(c *fiber.Ctx) error {
	var req coordinateRequest
	if err := c.BodyParser(&req); err != nil || !req.validCoordinates() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "latitude and longitude are required"})
	}

	view, err := h.Store.ClosestTransitEdge(*req.Latitude, *req.Longitude)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"edge": view})
}

// UpdateNearestEdge sets the weight of the transit edge closest to a
// coordinate.
func (h *Handler) UpdateNearestEdge(c *fiber.Ctx) error {
	var req coordinateRequest
	if err := c.BodyParser(&req); err != nil || !req.validCoordinates() || req.Weight == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "latitude, longitude and weight are required"})
	}

	view, err := h.Store.UpdateClosestTransitEdge(*req.Latitude, *req.Longitude, *req.Weight)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"edge": view})
}

type createIncidentRequest struct {
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	Username            string   `json:"username"`
	ReporterSocialScore float64  `json:"reporter_social_score"`
}

// CreateIncident stores a new incident report.
func (h *Handler) CreateIncident(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}

	var req createIncidentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.Latitude == nil || req.Longitude == nil || req.Category == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "latitude, longitude and category are required",
		})
	}

	incident := models.Incident{
		Latitude:            *req.Latitude,
		Longitude:           *req.Longitude,
		Description:         req.Description,
		Category:            req.Category,
		Username:            req.Username,
		ReporterSocialScore: req.ReporterSocialScore,
	}
	if err := h.Incidents.Create(c.Context(), &incident); err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(incident)
}

// ListIncidents returns incidents, filterable by category, approval and age.
func (h *Handler) ListIncidents(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}

	filter := incidents.ListFilter{Category: c.Query("category")}
	if raw := c.Query("approved"); raw != "" {
		approved, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "approved must be a boolean"})
		}
		filter.Approved = &approved
	}
	if raw := c.Query("since_hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "since_hours must be a positive number"})
		}
		filter.Since = time.Now().UTC().Add(-time.Duration(hours * float64(time.Hour)))
	}

	list, err := h.Incidents.List(c.Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	if list == nil {
		list = []models.Incident{}
	}
	return c.JSON(fiber.Map{"incidents": list})
}

// ApproveIncident marks an incident approved, crediting the reporter.
func (h *Handler) ApproveIncident(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}
	if err := h.Incidents.Approve(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "approved"})
}

// RevokeIncident clears an incident's approval.
func (h *Handler) RevokeIncident(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}
	if err := h.Incidents.Revoke(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "revoked"})
}

// DeleteIncident removes one incident.
func (h *Handler) DeleteIncident(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}
	if err := h.Incidents.Delete(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// BulkDeleteIncidents removes incidents older than the given age.
func (h *Handler) BulkDeleteIncidents(c *fiber.Ctx) error {
	if h.Incidents == nil {
		return incidentStoreUnavailable(c)
	}

	hours, err := strconv.ParseFloat(c.Query("older_than_hours"), 64)
	if err != nil || hours <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "older_than_hours must be a positive number"})
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours * float64(time.Hour)))
	deleted, err := h.Incidents.DeleteOlderThan(c.Context(), cutoff)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

type createPostRequest struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	StopName    string   `json:"stop_name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// CreatePost stores a new, unapproved post.
func (h *Handler) CreatePost(c *fiber.Ctx) error {
	if h.Posts == nil {
		return postStoreUnavailable(c)
	}

	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if req.Latitude == nil || req.Longitude == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "latitude and longitude are required"})
	}

	post := models.Post{
		Description: req.Description,
		Category:    req.Category,
		StopName:    req.StopName,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
	}
	if err := h.Posts.Create(c.Context(), &post); err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ListPosts returns posts; ?approved=true narrows to approved ones.
func (h *Handler) ListPosts(c *fiber.Ctx) error {
	if h.Posts == nil {
		return postStoreUnavailable(c)
	}

	approvedOnly := c.Query("approved") == "true"
	list, err := h.Posts.List(c.Context(), approvedOnly)
	if err != nil {
		return errorJSON(c, err)
	}
	if list == nil {
		list = []models.Post{}
	}
	return c.JSON(fiber.Map{"posts": list})
}

// ApprovePost approves a post and inflates its nearest transit edge.
func (h *Handler) ApprovePost(c *fiber.Ctx) error {
	if h.Posts == nil {
		return postStoreUnavailable(c)
	}
	if err := h.Posts.Approve(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "approved"})
}

// RevokePost clears a post's approval and restores the edge.
func (h *Handler) RevokePost(c *fiber.Ctx) error {
	if h.Posts == nil {
		return postStoreUnavailable(c)
	}
	if err := h.Posts.Revoke(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "revoked"})
}

// DeletePost removes a post, reverting its impact when approved.
func (h *Handler) DeletePost(c *fiber.Ctx) error {
	if h.Posts == nil {
		return postStoreUnavailable(c)
	}
	if err := h.Posts.Delete(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func incidentStoreUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "incident store not configured"})
}

func postStoreUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "post store not configured"})
}

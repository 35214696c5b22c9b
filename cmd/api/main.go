package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/krakflow/krakflow_core/internal/api"
	"github.com/krakflow/krakflow_core/internal/cache"
	"github.com/krakflow/krakflow_core/internal/config"
	"github.com/krakflow/krakflow_core/internal/db"
	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/gtfs"
	"github.com/krakflow/krakflow_core/internal/incidents"
	"github.com/krakflow/krakflow_core/internal/posts"
)

func main() {
	log.Println("Starting KrakFlow API server...")

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load GTFS feed and build the mode graphs. This runs before the server
	// accepts traffic so no request ever sees a partial graph.
	feed, err := gtfs.Load(settings.GTFSFeedPath)
	if err != nil {
		log.Fatalf("Failed to load GTFS feed: %v", err)
	}
	log.Printf("✓ GTFS feed loaded: %d stops, %d trips, %d stop times (service date %q)",
		len(feed.Stops), len(feed.Trips), len(feed.StopTimes), feed.ServiceDate)

	builder := graph.NewBuilder()
	builder.WalkingSpeedKmh = settings.WalkingSpeedKmh
	builder.BikeSpeedKmh = settings.BikeSpeedKmh
	builder.BikeAccessRadiusM = settings.BikeAccessRadius

	graphs, err := builder.Build(feed)
	if err != nil {
		log.Fatalf("Failed to build transport graphs: %v", err)
	}
	store := graph.NewStore(graphs, builder)
	for _, stat := range store.Stats() {
		log.Printf("✓ Graph %-12s %6d nodes %7d edges", stat.Mode, stat.Nodes, stat.Edges)
	}

	if settings.BikeParkingsPath != "" {
		parkings, err := graph.LoadBikeParkingFile(settings.BikeParkingsPath)
		if err != nil {
			log.Printf("Warning: bike parkings not loaded: %v", err)
		} else if err := store.LoadBikeParkings(parkings, settings.BikeAccessRadius); err != nil {
			log.Printf("Warning: applying bike parkings failed: %v", err)
		} else {
			log.Printf("✓ Loaded %d bike parkings", len(parkings))
		}
	}

	// Postgres backs the incident and post stores. The service still serves
	// routing without it, so a failure only disables those endpoints.
	var incidentRepo incidents.Repository
	var postService *posts.Service
	pool, err := db.Connect(ctx, db.LoadConfigFromEnv())
	if err != nil {
		log.Printf("Warning: database unavailable, incident and post endpoints disabled: %v", err)
	} else {
		defer pool.Close()
		log.Println("✓ Database connection established")

		repo := incidents.NewPostgresRepository(pool, settings.IncidentApprovalReward)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure incidents schema: %v", err)
		}
		incidentRepo = repo

		postRepo := posts.NewPostgresRepository(pool)
		if err := postRepo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure posts schema: %v", err)
		}
		postService = posts.NewService(postRepo, store, settings.PostImpactMultiplier)
	}

	// Redis caches route plans; missing Redis degrades to uncached planning.
	var planCache *cache.PlanCache
	cacheConfig := cache.LoadConfigFromEnv()
	if redisClient, err := cache.NewClient(ctx, cacheConfig); err != nil {
		log.Printf("Warning: Redis unavailable, plan caching disabled: %v", err)
	} else {
		defer redisClient.Close()
		planCache = cache.NewPlanCache(redisClient, cacheConfig.TTL)
		log.Println("✓ Redis connection established")
	}

	if incidentRepo != nil {
		rules := incidents.NewRules(settings.IncidentMultipliers, settings.IncidentTrustThreshold)
		impact := incidents.NewImpactService(incidentRepo, store, rules, settings.IncidentPollInterval)
		go impact.Run(ctx)
		log.Printf("✓ Incident impact loop running every %s", settings.IncidentPollInterval)
	}

	app := fiber.New(fiber.Config{
		AppName:      "KrakFlow API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	api.NewHandler(store, incidentRepo, postService, planCache).Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	addr := fmt.Sprintf(":%s", settings.Port)
	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📍 Route planning: http://localhost%s/transport/routes?mode=MODE&source=STOP&target=STOP", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

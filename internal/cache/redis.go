package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krakflow/krakflow_core/internal/models"
)

// Config holds Redis configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	if err != nil {
		ttl = 10 * time.Minute
	}

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
	}
}

// NewClient creates a Redis client and verifies connectivity. Callers own the
// returned client.
func NewClient(ctx context.Context, config *Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	// Enable TLS if configured (required for managed Redis providers)
	if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// PlanCache caches route plans in Redis. Keys embed the mode graph's version
// counter, so every edge update naturally invalidates stale plans. A nil
// PlanCache (Redis absent) is a safe no-op.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlanCache wraps a Redis client. Returns nil when the client is nil so a
// missing Redis degrades to uncached planning.
func NewPlanCache(client *redis.Client, ttl time.Duration) *PlanCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PlanCache{client: client, ttl: ttl}
}

// Key generates a cache key for a plan query
func Key(mode, source, target string, version uint64) string {
	data := fmt.Sprintf("%s|%s|%s", mode, source, target)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("plan:%s:v%d:%x", mode, version, hash[:8])
}

// Get retrieves a cached plan; (nil, nil) signals a miss
func (c *PlanCache) Get(ctx context.Context, key string) (*models.RoutePlan, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var plan models.RoutePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached plan: %w", err)
	}
	return &plan, nil
}

// Set caches a plan
func (c *PlanCache) Set(ctx context.Context, key string, plan *models.RoutePlan) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

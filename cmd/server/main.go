package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/xtrntr/ccx/internal/api"
	"github.com/xtrntr/ccx/internal/auth"
	"github.com/xtrntr/ccx/internal/config"
	"github.com/xtrntr/ccx/internal/db"
	"github.com/xtrntr/ccx/internal/exchange"
	"github.com/xtrntr/ccx/internal/feed"
	"github.com/xtrntr/ccx/internal/models"
	"github.com/xtrntr/ccx/internal/ratelimit"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Main entry point: wires the engine, optional journal, rate limiter and auth, then serves HTTP
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize the matching engine
	engineCfg := exchange.DefaultConfig()
	engineCfg.TradeLogCap = cfg.TradeLogCap
	engineCfg.OpenPrice = cfg.OpenPrice
	engineCfg.LastPrice = cfg.LastPrice
	ex := exchange.NewEngine(engineCfg)

	if cfg.SeedMarket {
		if err := ex.SeedMarket(exchange.MarketMakerID, exchange.DefaultBids(), exchange.DefaultAsks()); err != nil {
			log.Fatalf("Failed to seed market: %v", err)
		}
		log.Printf("Seeded market with %d resting orders", ex.Len())
	}

	handler := api.NewHandler(ex, cfg.BookDepth)

	if cfg.JournalEnabled() {
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close(context.Background())
		handler.Journal = database
		log.Println("Trade journal enabled")
	}

	if cfg.RateLimitEnabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		limiter, err := ratelimit.NewLimiter(client, ratelimit.Policy{
			Burst:           cfg.RateLimitBurst,
			RefillPerSecond: cfg.RateLimitRefill,
		})
		if err != nil {
			log.Fatalf("Failed to configure rate limiter: %v", err)
		}
		if !limiter.IsHealthy(ctx) {
			log.Printf("Redis at %s is not reachable, order rate limiting fails open until it is", cfg.RedisAddr)
		}
		handler.Limiter = limiter
	}

	if cfg.AuthEnabled() {
		handler.AuthService = auth.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		log.Printf("Auth disabled, callers are identified by the %s header", api.UserHeader)
	}

	hub := feed.NewHub(func() (models.BookState, error) {
		return ex.BookState(cfg.BookDepth)
	}, originChecker(cfg.AllowedOrigins))
	go hub.Run(ctx, cfg.BroadcastInterval)

	r := api.NewRouter(handler, hub, cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", api.UserHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

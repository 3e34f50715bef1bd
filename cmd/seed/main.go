// Command seed places the default market-maker ladder on a running server.
//
// The server seeds the same ladder at startup unless CCX_SEED_MARKET=false, so
// seed skips users that already have resting orders unless -force is given.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/xtrntr/ccx/internal/api"
	"github.com/xtrntr/ccx/internal/auth"
	"github.com/xtrntr/ccx/internal/config"
	"github.com/xtrntr/ccx/internal/exchange"
	"github.com/xtrntr/ccx/internal/models"
)

type seeder struct {
	server string
	user   string
	token  string
	client *http.Client
}

func (s *seeder) authorize(req *http.Request) {
	req.Header.Set("X-Request-Id", uuid.NewString())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	} else {
		req.Header.Set(api.UserHeader, s.user)
	}
}

// openOrders returns the seeding user's resting orders
func (s *seeder) openOrders() ([]models.Order, error) {
	req, err := http.NewRequest(http.MethodGet, s.server+"/orders", nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var orders []models.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return orders, nil
}

func (s *seeder) place(side models.Side, q models.Quote) (models.Execution, error) {
	body, err := json.Marshal(map[string]interface{}{
		"side":     side,
		"price":    q.Price,
		"quantity": q.Quantity,
	})
	if err != nil {
		return models.Execution{}, err
	}

	req, err := http.NewRequest(http.MethodPost, s.server+"/orders", bytes.NewReader(body))
	if err != nil {
		return models.Execution{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Execution{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return models.Execution{}, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var exec models.Execution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return models.Execution{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return exec, nil
}

// Seed the order book with the default ladder
func main() {
	server := flag.String("server", "http://localhost:8080", "Server URL")
	user := flag.String("user", exchange.MarketMakerID, "User that owns the seeded orders")
	ttl := flag.Duration("ttl", 5*time.Minute, "Lifetime of the issued token when auth is enabled")
	force := flag.Bool("force", false, "Seed even if the user already has resting orders; the server seeds at startup unless CCX_SEED_MARKET=false")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s := &seeder{server: *server, user: *user, client: &http.Client{Timeout: 10 * time.Second}}
	if cfg.AuthEnabled() {
		s.token, err = auth.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer).IssueToken(*user, *ttl)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
	}

	res, err := s.run(*force)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	if res.skipped > 0 {
		fmt.Printf("%s already has %d resting orders, nothing placed (use -force to seed anyway)\n", *user, res.skipped)
		return
	}
	fmt.Printf("Placed %d orders for %s (%d trades)\n", res.placed, *user, res.trades)
}

type result struct {
	placed  int
	trades  int
	skipped int // resting orders found when seeding was skipped
}

// run places the default ladder. Without force it does nothing when the user
// already has resting orders.
func (s *seeder) run(force bool) (result, error) {
	if !force {
		existing, err := s.openOrders()
		if err != nil {
			return result{}, fmt.Errorf("failed to check existing orders: %w", err)
		}
		if len(existing) > 0 {
			return result{skipped: len(existing)}, nil
		}
	}

	var res result
	ladder := []struct {
		side   models.Side
		quotes []models.Quote
	}{
		{models.SideBuy, exchange.DefaultBids()},
		{models.SideSell, exchange.DefaultAsks()},
	}
	for _, l := range ladder {
		for _, q := range l.quotes {
			exec, err := s.place(l.side, q)
			if err != nil {
				return res, fmt.Errorf("place %s %s @ %s: %w", l.side, q.Quantity, q.Price, err)
			}
			res.placed++
			res.trades += len(exec.Trades)
		}
	}
	return res, nil
}

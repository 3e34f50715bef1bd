package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/ccx/internal/auth"
	"github.com/xtrntr/ccx/internal/exchange"
	"github.com/xtrntr/ccx/internal/models"
	"github.com/xtrntr/ccx/internal/ratelimit"
)

// AnonymousUser owns orders placed without credentials when auth is disabled
const AnonymousUser = "anonymous"

// UserHeader carries the caller's id when auth is disabled
const UserHeader = "X-User-ID"

// MaxOrderBodyBytes caps the size of a POST /orders body
const MaxOrderBodyBytes = 4 << 10

const journalTimeout = 5 * time.Second

// Journal persists executed trades outside the engine
type Journal interface {
	RecordTrades(ctx context.Context, trades []models.Trade) error
	GetUserTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error)
}

// Limiter decides whether a caller may use a rate limited route again
type Limiter interface {
	Allow(ctx context.Context, route, userID string) (*ratelimit.Result, error)
}

// Rate limited routes
const (
	RouteOrders  = "orders"
	RouteCancels = "cancels"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the authenticated caller stored by Authenticate
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Handler contains dependencies for HTTP handlers. Journal, Limiter and
// AuthService are optional; a nil value disables that feature.
type Handler struct {
	Exchange    *exchange.Engine
	Journal     Journal
	Limiter     Limiter
	AuthService *auth.AuthService
	BookDepth   int
}

// NewHandler creates a new handler
func NewHandler(ex *exchange.Engine, bookDepth int) *Handler {
	return &Handler{Exchange: ex, BookDepth: bookDepth}
}

// Authenticate resolves the caller from a bearer token, or from X-User-ID when
// no AuthService is configured
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if h.AuthService == nil {
			userID = strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				userID = AnonymousUser
			}
		} else {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Authorization header required")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			var err error
			userID, err = h.AuthService.GetUserFromToken(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Invalid or expired token")
				return
			}
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit applies the caller's token bucket for route. Limiter failures let the
// request through.
func (h *Handler) RateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID, _ := UserID(r.Context())
			result, err := h.Limiter.Allow(r.Context(), route, userID)
			if err != nil {
				log.Printf("rate limiter unavailable, allowing request: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"resting_count": h.Exchange.Len(),
	})
}

type placeOrderRequest struct {
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// PlaceOrder submits a limit order and returns the taker's final state with its trades
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
		return
	}

	var req placeOrderRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxOrderBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidArgument, "Invalid request body")
		return
	}

	side := models.Side(strings.ToUpper(strings.TrimSpace(req.Side)))
	execution, err := h.Exchange.Execute(side, req.Price, req.Quantity, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// the book already changed, so journal failures are logged rather than returned
	if h.Journal != nil && len(execution.Trades) > 0 {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), journalTimeout)
		if err := h.Journal.RecordTrades(ctx, execution.Trades); err != nil {
			log.Printf("Failed to journal %d trades for order %s: %v", len(execution.Trades), execution.Order.ID, err)
		}
		cancel()
	}

	writeJSON(w, http.StatusCreated, execution)
}

// GetUserOrders returns the caller's resting orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, h.Exchange.OpenOrders(userID))
}

// GetOrder returns one of the caller's resting orders. Other users' orders are
// reported as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
		return
	}

	orderID := chi.URLParam(r, "id")
	order, found := h.Exchange.Order(orderID)
	if !found || order.UserID != userID {
		writeEngineError(w, exchange.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder removes one of the caller's resting orders
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
		return
	}

	order, err := h.Exchange.CancelOrder(chi.URLParam(r, "id"), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrderBook returns the aggregated book with market stats
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	depth := h.BookDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeInvalidArgument, "depth must be an integer")
			return
		}
		depth = n
	}

	state, err := h.Exchange.BookState(depth)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetRecentTrades returns the trade tape, most recent first
func (h *Handler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Exchange.RecentTrades())
}

// GetUserTrades returns the caller's journaled trades
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
		return
	}
	if h.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrorCodeUnavailable, "Trade history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrorCodeInvalidArgument, "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.Journal.GetUserTrades(r.Context(), userID, limit)
	if err != nil {
		log.Printf("Failed to load trades for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "Failed to retrieve trades")
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

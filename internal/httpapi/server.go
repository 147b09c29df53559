// Package httpapi exposes order ingestion and listing over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/buildtall-systems/vinopack/internal/catalog"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/ingest"
)

const requestIDHeader = "X-Request-ID"

// Ingester accepts new orders.
type Ingester interface {
	Ingest(ctx context.Context, lines []catalog.Line) (*ingest.Result, error)
}

// Store reads orders for the listing and database check endpoints.
type Store interface {
	ListOrdersWithItems(ctx context.Context) ([]db.OrderWithItems, error)
	Ping(ctx context.Context) error
}

// TransportStatus reports broker connectivity.
type TransportStatus interface {
	Connected() bool
}

// Server holds the HTTP handlers.
type Server struct {
	ingester  Ingester
	store     Store
	transport TransportStatus
	gatherer  prometheus.Gatherer
}

// NewServer creates a server. gatherer may be nil to omit /metrics.
func NewServer(ingester Ingester, store Store, transport TransportStatus, gatherer prometheus.Gatherer) *Server {
	return &Server{
		ingester:  ingester,
		store:     store,
		transport: transport,
		gatherer:  gatherer,
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(), cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.POST("/order", s.createOrder)
	api.GET("/orders", s.listOrders)
	api.GET("/transport-status", s.transportStatus)
	api.GET("/test-db", s.testDB)

	return r
}

type orderLine struct {
	Tipo     string `json:"tipo"`
	Cantidad int    `json:"cantidad"`
}

type createOrderRequest struct {
	Order []orderLine `json:"order"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	lines := make([]catalog.Line, len(req.Order))
	for i, l := range req.Order {
		lines[i] = catalog.Line{Label: l.Tipo, Quantity: l.Cantidad}
	}

	res, err := s.ingester.Ingest(c.Request.Context(), lines)
	switch {
	case errors.Is(err, ingest.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order", "details": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("request_id", c.GetString(requestIDHeader)).Msg("creating order")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save order", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "order received", "id": res.OrderID})
}

type itemResponse struct {
	WineType string `json:"wine_type"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Status    string         `json:"status"`
	Items     []itemResponse `json:"items"`
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.store.ListOrdersWithItems(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("listing orders")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list orders", "details": err.Error()})
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		items := make([]itemResponse, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, itemResponse{WineType: it.WineType, Quantity: it.Quantity})
		}
		resp = append(resp, orderResponse{
			ID:        o.ID,
			CreatedAt: o.CreatedAt,
			Status:    o.Status,
			Items:     items,
		})
	}

	c.JSON(http.StatusOK, gin.H{"orders": resp})
}

func (s *Server) transportStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected": s.transport.Connected()})
}

func (s *Server) testDB(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "database unreachable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "database connection ok"})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("request_id", c.GetString(requestIDHeader)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// cors allows every origin; the order form is served from elsewhere.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

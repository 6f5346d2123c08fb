// Package server exposes retrieval over HTTP: POST /retrieve runs the
// hybrid search pipeline, GET /health reports storage reachability, index
// coverage, and the pipeline counters.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langgraphsystem/rssnews/internal/search"
	"github.com/langgraphsystem/rssnews/internal/store"
	"github.com/langgraphsystem/rssnews/internal/textutil"
)

const maxK = 50

// Retriever is the search surface the server fronts.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (*search.Result, error)
	Counters() search.CounterSnapshot
}

// Health is the storage surface the health endpoint reads.
type Health interface {
	Ping(ctx context.Context) error
	ChunkIndexStats(ctx context.Context) (store.IndexStats, error)
}

// Server is the HTTP retrieval surface.
type Server struct {
	retriever Retriever
	health    Health
	log       *slog.Logger
	engine    *gin.Engine
}

// New builds a Server and its routes.
func New(r Retriever, h Health, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		retriever: r,
		health:    h,
		log:       log.With(slog.String("component", "server")),
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.POST("/retrieve", s.handleRetrieve)
	s.engine.GET("/health", s.handleHealth)
	return s
}

// Handler exposes the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http server listening", slog.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// retrieveRequest is the POST /retrieve body. K is a pointer so an explicit
// k of zero is distinguishable from an absent one.
type retrieveRequest struct {
	Query         string           `json:"query"`
	Hours         int              `json:"hours"`
	K             *int             `json:"k"`
	Filters       *retrieveFilters `json:"filters"`
	Cursor        string           `json:"cursor"`
	CorrelationID string           `json:"correlation_id"`
}

type retrieveFilters struct {
	Sources []string `json:"sources"`
	Lang    string   `json:"lang"`
}

// retrieveItem is one result row on the wire.
type retrieveItem struct {
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	SourceDomain   string     `json:"source_domain"`
	PublishedAt    *time.Time `json:"published_at"`
	Snippet        string     `json:"snippet"`
	RelevanceScore float64    `json:"relevance_score"`
}

type freshnessStats struct {
	MedianAgeSeconds *float64 `json:"median_age_seconds"`
	WindowHours      int      `json:"window_hours"`
}

type retrieveDiagnostics struct {
	TotalResults  int     `json:"total_results"`
	Offset        int     `json:"offset"`
	Returned      int     `json:"returned"`
	HasMore       bool    `json:"has_more"`
	Window        string  `json:"window"`
	CorrelationID *string `json:"correlation_id"`
}

type retrieveResponse struct {
	Items          []retrieveItem      `json:"items"`
	NextCursor     *string             `json:"next_cursor"`
	TotalAvailable int                 `json:"total_available"`
	Coverage       float64             `json:"coverage"`
	Freshness      freshnessStats      `json:"freshness_stats"`
	Diagnostics    retrieveDiagnostics `json:"diagnostics"`
}

const snippetLen = 240

// windowLabel renders a window compactly: whole days as Nd, otherwise Nh.
func windowLabel(w time.Duration) string {
	if w >= 24*time.Hour && w%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(w/(24*time.Hour)))
	}
	return fmt.Sprintf("%dh", int(w/time.Hour))
}

// medianAgeSeconds returns the median age of the dated items, nil when none
// carry a publication time.
func medianAgeSeconds(items []*search.ScoredChunk, now time.Time) *float64 {
	var ages []float64
	for _, ch := range items {
		if ch.PublishedAt != nil {
			ages = append(ages, now.Sub(*ch.PublishedAt).Seconds())
		}
	}
	if len(ages) == 0 {
		return nil
	}
	sort.Float64s(ages)
	m := ages[len(ages)/2]
	if len(ages)%2 == 0 {
		m = (ages[len(ages)/2-1] + ages[len(ages)/2]) / 2
	}
	return &m
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if req.Hours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must not be negative"})
		return
	}
	window := time.Duration(req.Hours) * time.Hour

	k := 10
	if req.K != nil {
		k = *req.K
	}
	if k < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "k must not be negative"})
		return
	}
	if k > maxK {
		k = maxK
	}

	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		offset = n
	}

	var corr *string
	if req.CorrelationID != "" {
		corr = &req.CorrelationID
	}

	// An explicit k of zero is a valid probe: no items, just the counts.
	if k == 0 {
		c.JSON(http.StatusOK, retrieveResponse{
			Items:     []retrieveItem{},
			Freshness: freshnessStats{WindowHours: req.Hours},
			Diagnostics: retrieveDiagnostics{
				Window:        windowLabel(window),
				CorrelationID: corr,
			},
		})
		return
	}

	var filter store.RetrievalFilter
	if req.Filters != nil {
		filter.Lang = req.Filters.Lang
		filter.Sources = req.Filters.Sources
	}

	// The cursor is an offset into one ranked list, so the underlying
	// retrieval has to cover the page and everything before it.
	flags := search.DefaultFlags()
	flags.UseCache = true
	res, err := s.retriever.Retrieve(c.Request.Context(), search.Request{
		Query:  req.Query,
		Window: window,
		K:      offset + k,
		Filter: filter,
		Flags:  flags,
	})
	if err != nil {
		s.log.Error("retrieve failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retrieval unavailable"})
		return
	}

	total := len(res.Chunks)
	page := res.Chunks
	if offset >= total {
		page = nil
	} else {
		page = page[offset:]
	}

	hasMore := total == offset+k
	var next *string
	if hasMore {
		v := strconv.Itoa(offset + k)
		next = &v
	}

	finalWindow := res.Diagnostics.FinalWindow
	out := retrieveResponse{
		Items:          make([]retrieveItem, 0, len(page)),
		NextCursor:     next,
		TotalAvailable: total,
		Coverage:       float64(len(page)) / float64(k),
		Freshness: freshnessStats{
			MedianAgeSeconds: medianAgeSeconds(page, time.Now()),
			WindowHours:      int(finalWindow / time.Hour),
		},
		Diagnostics: retrieveDiagnostics{
			TotalResults:  total,
			Offset:        offset,
			Returned:      len(page),
			HasMore:       hasMore,
			Window:        windowLabel(finalWindow),
			CorrelationID: corr,
		},
	}
	for _, ch := range page {
		out.Items = append(out.Items, retrieveItem{
			Title:          ch.Title,
			URL:            ch.URL,
			SourceDomain:   ch.SourceDomain,
			PublishedAt:    ch.PublishedAt,
			Snippet:        textutil.Snippet(ch.Text, snippetLen),
			RelevanceScore: ch.Score,
		})
	}
	c.JSON(http.StatusOK, out)
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Checks    map[string]string      `json:"checks"`
	Index     *store.IndexStats      `json:"index,omitempty"`
	Counters  search.CounterSnapshot `json:"counters"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	resp := healthResponse{
		Timestamp: time.Now().UTC(),
		Service:   "rssnews",
		Checks:    map[string]string{},
		Counters:  s.retriever.Counters(),
	}

	if err := s.health.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Checks["database"] = "ok"

	resp.Status = "healthy"
	if stats, err := s.health.ChunkIndexStats(ctx); err == nil {
		resp.Index = &stats
	} else {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

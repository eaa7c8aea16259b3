package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/tasks"
)

// MigrationRunner starts migration runs.
type MigrationRunner interface {
	Run(ctx context.Context, opts tasks.RunOptions, progress chan<- tasks.ProgressUpdate) (*models.MigrationReport, error)
	Active() bool
}

// ItemReader reads the item journal.
type ItemReader interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error)
	CountByStatus(ctx context.Context) (map[models.ItemStatus]int, error)
}

// RunLister reads run history.
type RunLister interface {
	List(ctx context.Context, limit int) ([]*models.Run, error)
}

type errorBody struct {
	Message string `json:"message"`
}

// MigrationRequest is the optional JSON body of POST /migrations. Zero fields take the handler defaults.
type MigrationRequest struct {
	Channel     string `json:"channel"`
	Limit       *int   `json:"limit"`
	RetryFailed bool   `json:"retry_failed"`
	SkipSync    bool   `json:"skip_sync"`
	Wait        bool   `json:"wait"`
}

// MigrationStatus is returned by GET /migrations.
type MigrationStatus struct {
	Running bool                    `json:"running"`
	Report  *models.MigrationReport `json:"report,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// MigrationHandler serves the migration endpoints.
type MigrationHandler struct {
	runner   MigrationRunner
	items    ItemReader
	runs     RunLister
	defaults tasks.RunOptions
	ctx      context.Context
	logger   *log.Logger

	busy atomic.Bool
	wg   sync.WaitGroup
	mu   sync.Mutex
	last MigrationStatus
}

// NewMigrationHandler creates a MigrationHandler. Background runs use ctx, so cancelling it stops them.
func NewMigrationHandler(ctx context.Context, runner MigrationRunner, items ItemReader, runs RunLister, defaults tasks.RunOptions, logger *log.Logger) *MigrationHandler {
	return &MigrationHandler{
		runner:   runner,
		items:    items,
		runs:     runs,
		defaults: defaults,
		ctx:      ctx,
		logger:   logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *MigrationHandler) Routes() []string {
	return []string{"/migrations", "/items", "/items/", "/runs", "/health"}
}

// Wait blocks until background runs started by the handler have finished.
func (h *MigrationHandler) Wait() {
	h.wg.Wait()
}

// ServeHTTP dispatches on path and method.
func (h *MigrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/migrations" && r.Method == http.MethodPost:
		h.startMigration(w, r)
	case r.URL.Path == "/migrations" && r.Method == http.MethodGet:
		h.migrationStatus(w)
	case r.URL.Path == "/items" && r.Method == http.MethodGet:
		h.listItems(w, r)
	case strings.HasPrefix(r.URL.Path, "/items/") && r.Method == http.MethodGet:
		h.getItem(w, r, strings.TrimPrefix(r.URL.Path, "/items/"))
	case r.URL.Path == "/runs" && r.Method == http.MethodGet:
		h.listRuns(w, r)
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)
	case r.URL.Path == "/migrations", r.URL.Path == "/items", r.URL.Path == "/runs", r.URL.Path == "/health",
		strings.HasPrefix(r.URL.Path, "/items/"):
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "method not allowed"})
	default:
		NotFound(w, r)
	}
}

func (h *MigrationHandler) startMigration(w http.ResponseWriter, r *http.Request) {
	var req MigrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid request body: " + err.Error()})
		return
	}

	opts := h.defaults
	if req.Channel != "" {
		opts.ChannelRef = req.Channel
	}
	if req.Limit != nil {
		opts.ItemLimit = *req.Limit
	}
	opts.RetryFailed = opts.RetryFailed || req.RetryFailed
	opts.SkipSync = opts.SkipSync || req.SkipSync

	if opts.ChannelRef == "" && !opts.SkipSync {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "channel is required"})
		return
	}

	if h.runner.Active() || !h.busy.CompareAndSwap(false, true) {
		writeError(w, shared.ErrRunInProgress)
		return
	}

	if req.Wait {
		defer h.busy.Store(false)
		report, err := h.runner.Run(r.Context(), opts, nil)
		h.record(report, err)
		if err != nil {
			if report == nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusInternalServerError, MigrationStatus{Report: report, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	h.mu.Lock()
	h.last = MigrationStatus{Running: true}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.busy.Store(false)

		report, err := h.runner.Run(h.ctx, opts, nil)
		if err != nil {
			h.logger.Error("background migration failed", "err", err)
		}
		h.record(report, err)
	}()

	writeJSON(w, http.StatusAccepted, errorBody{Message: "migration started"})
}

func (h *MigrationHandler) record(report *models.MigrationReport, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = MigrationStatus{Report: report}
	if err != nil {
		h.last.Error = err.Error()
	}
}

func (h *MigrationHandler) migrationStatus(w http.ResponseWriter) {
	h.mu.Lock()
	status := h.last
	h.mu.Unlock()
	status.Running = h.busy.Load() || h.runner.Active()
	writeJSON(w, http.StatusOK, status)
}

func (h *MigrationHandler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ItemFilter{ChannelID: q.Get("channel")}

	if s := q.Get("status"); s != "" {
		status, err := models.ParseItemStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error()})
			return
		}
		filter.Status = status
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	items, err := h.items.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *MigrationHandler) getItem(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "item id is required"})
		return
	}
	item, err := h.items.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *MigrationHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *MigrationHandler) health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.items.CountByStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": h.busy.Load() || h.runner.Active(),
		"items":   counts,
		"time":    time.Now().UTC(),
	})
}

// Greeting answers the root path.
func Greeting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Hello world"))
}

// NewRouter builds the application router with logging, recovery, the root greeting and h's routes.
func NewRouter(h *MigrationHandler, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	router.HandleFunc(http.MethodGet, "/{$}", Greeting)
	router.Handler(h)
	return router
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrItemNotFound), errors.Is(err, shared.ErrRunNotFound), errors.Is(err, shared.ErrChannelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package jobs

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
)

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// QueueInspector is the part of asynq.Inspector the stats reader needs.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// ReadStats reports every worker queue. Queues Redis has not seen yet are
// reported with zero counters.
func ReadStats(inspector QueueInspector) ([]QueueStats, error) {
	known, err := inspector.Queues()
	if err != nil {
		return nil, err
	}
	out := make([]QueueStats, 0, len(Queues()))
	for _, name := range Queues() {
		stats := QueueStats{Queue: name}
		if slices.Contains(known, name) {
			info, err := inspector.GetQueueInfo(name)
			if err != nil {
				return nil, err
			}
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// Handler serves the queue health endpoint.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs a Handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: loggerOr(logger)}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.inspector == nil {
		stats := make([]QueueStats, 0, len(Queues()))
		for _, name := range Queues() {
			stats = append(stats, QueueStats{Queue: name})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"queues": stats})
		return
	}
	stats, err := ReadStats(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "the job queue could not be inspected")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": stats})
}

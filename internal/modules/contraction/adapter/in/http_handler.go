package in

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	promdto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"laborwatch/internal/modules/contraction/dto"
	contractionin "laborwatch/internal/modules/contraction/port/in"
	apperrors "laborwatch/internal/platform/errors"
)

// HistoryResponse carries whatever history could be read. Warning is set when
// the ledger failed and only in-memory events are listed.
type HistoryResponse struct {
	Events  []dto.EventOutput `json:"events"`
	Warning string            `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type HTTPHandler struct {
	usecase contractionin.Usecase
	hub     *SeriesHub
	logger  *slog.Logger
}

func NewHTTPHandler(usecase contractionin.Usecase, hub *SeriesHub, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{usecase: usecase, hub: hub, logger: logger}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/history", h.history)
	mux.HandleFunc("GET /api/v1/series", h.series)
	mux.HandleFunc("GET /api/v1/summary", h.summary)
	mux.HandleFunc("GET /api/v1/timer", h.status)
	mux.HandleFunc("POST /api/v1/timer/start", h.start)
	mux.HandleFunc("POST /api/v1/timer/stop", h.stop)
	mux.HandleFunc("POST /api/v1/timer/reset", h.reset)
	mux.HandleFunc("GET /metrics", h.metrics)
	if h.hub != nil {
		mux.Handle("GET /ws/series", h.hub)
	}
	return mux
}

func (h *HTTPHandler) history(w http.ResponseWriter, r *http.Request) {
	events, err := h.usecase.History(r.Context(), dto.HistoryInput{Order: r.URL.Query().Get("order")})
	if errors.Is(err, apperrors.ErrInvalidInput) {
		h.writeError(w, err)
		return
	}
	resp := HistoryResponse{Events: events}
	if err != nil {
		h.logger.Warn("history read degraded", "err", err)
		resp.Warning = err.Error()
	}
	if resp.Events == nil {
		resp.Events = []dto.EventOutput{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) series(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.LiveSeries(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) status(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) start(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Start(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) stop(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.Stop(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) metrics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usecase.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	timing := 0.0
	if summary.Timing {
		timing = 1
	}

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	for _, mf := range []*promdto.MetricFamily{
		counterFamily("laborwatch_contractions_total", "Contractions completed, persisted or cache-only.", float64(summary.Count)),
		gaugeFamily("laborwatch_window_mean_seconds", "Mean duration of the classifier window; 0 until the window is full.", summary.WindowMeanSec),
		gaugeFamily("laborwatch_urgency_level", "Current urgency: 1 calm, 2 approaching, 3 urgent.", float64(summary.LevelRank)),
		gaugeFamily("laborwatch_timing_active", "1 while a contraction is being timed.", timing),
	} {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			h.logger.Error("write metrics", "err", err)
			return
		}
	}
}

func counterFamily(name, help string, v float64) *promdto.MetricFamily {
	return &promdto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   promdto.MetricType_COUNTER.Enum(),
		Metric: []*promdto.Metric{{Counter: &promdto.Counter{Value: proto.Float64(v)}}},
	}
}

func gaugeFamily(name, help string, v float64) *promdto.MetricFamily {
	return &promdto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   promdto.MetricType_GAUGE.Enum(),
		Metric: []*promdto.Metric{{Gauge: &promdto.Gauge{Value: proto.Float64(v)}}},
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrStorageFailure):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/culinascan/internal/mealplan"
	"github.com/loqalabs/culinascan/internal/narration"
	"github.com/loqalabs/culinascan/internal/protocol"
	"github.com/loqalabs/culinascan/internal/recipe"
	"github.com/loqalabs/culinascan/internal/vision"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle(r.cfg.Telemetry.PrometheusPath, r.metricsHandler)
	}

	mux.HandleFunc("POST /v1/analyze", r.handleAnalyze)

	mux.HandleFunc("GET /v1/narration", r.handleNarrationStatus)
	mux.HandleFunc("POST /v1/narration", r.handleNarrationStart)
	mux.HandleFunc("DELETE /v1/narration", r.handleNarrationStop)

	mux.HandleFunc("GET /v1/mealplan", r.handleMealPlanList)
	mux.HandleFunc("POST /v1/mealplan", r.handleMealPlanAdd)
	mux.HandleFunc("DELETE /v1/mealplan", r.handleMealPlanClear)
	mux.HandleFunc("DELETE /v1/mealplan/{id}", r.handleMealPlanRemove)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleAnalyze accepts a raw JPEG body or a data URL / base64 text body.
func (r *Runtime) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.cfg.HTTP.MaxImageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	image := body
	if !bytes.HasPrefix(body, jpegMagic) && !strings.HasPrefix(req.Header.Get("Content-Type"), "image/") {
		image, err = vision.ImageFromDataURL(string(body))
		if err != nil {
			writeError(w, http.StatusBadRequest, "image must be JPEG bytes or a base64 data URL")
			return
		}
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "empty image")
		return
	}

	requestID := uuid.NewString()
	logger := r.logger.With(slog.String("component", "analyze"), slog.String("request_id", requestID))
	result, err := r.analyzer.Analyze(req.Context(), image)
	status := protocol.AnalysisStatus{RequestID: requestID, Timestamp: time.Now().UTC()}
	if err != nil {
		outcome := "api_error"
		if errors.Is(err, vision.ErrSchemaViolation) {
			outcome = "schema_violation"
		}
		r.countAnalysis(req, outcome)
		logger.Warn("analysis failed", slog.String("outcome", outcome), slogError(err))
		status.Error = outcome
		r.publishJSON(protocol.SubjectAnalysisCompleted, status)
		writeError(w, http.StatusBadGateway, vision.FailureMessage)
		return
	}

	r.countAnalysis(req, "ok")
	status.Succeeded = true
	status.Ingredients = len(result.IdentifiedIngredients)
	status.Recipes = len(result.Recipes)
	r.publishJSON(protocol.SubjectAnalysisCompleted, status)
	logger.Info("analysis complete", slog.Int("recipes", len(result.Recipes)))
	writeJSON(w, http.StatusOK, result)
}

type narrationRequest struct {
	CardID string         `json:"cardId"`
	Text   string         `json:"text"`
	Recipe *recipe.Recipe `json:"recipe,omitempty"`
}

type narrationStatus struct {
	Speaking string `json:"speaking"`
}

func (r *Runtime) handleNarrationStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, narrationStatus{Speaking: r.spotlight.Speaking()})
}

// handleNarrationStart queues narration for a card. Text wins over recipe when both are set.
func (r *Runtime) handleNarrationStart(w http.ResponseWriter, req *http.Request) {
	var body narrationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid narration request")
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" && body.Recipe != nil {
		text = narration.RecipeScript(*body.Recipe)
	}
	if body.CardID == "" || text == "" {
		writeError(w, http.StatusBadRequest, "cardId and text or recipe are required")
		return
	}

	card := narration.NewCard(body.CardID, r.session, r.spotlight)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := card.Speak(r.ctx, text); err != nil {
			r.logger.Warn("narration failed", slog.String("card_id", card.ID), slogError(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"cardId": body.CardID})
}

// handleNarrationStop silences the given card, or anything speaking when no cardId is given.
func (r *Runtime) handleNarrationStop(w http.ResponseWriter, req *http.Request) {
	if id := req.URL.Query().Get("cardId"); id != "" {
		narration.NewCard(id, r.session, r.spotlight).Stop()
	} else {
		r.session.Stop()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleMealPlanList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.mealPlan.List())
}

func (r *Runtime) handleMealPlanAdd(w http.ResponseWriter, req *http.Request) {
	var rec recipe.Recipe
	if err := json.NewDecoder(req.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipe")
		return
	}
	if strings.TrimSpace(rec.Title) == "" {
		writeError(w, http.StatusBadRequest, "recipe title is required")
		return
	}
	item, err := r.mealPlan.Add(req.Context(), rec)
	if err != nil {
		r.logger.Error("failed to save meal plan", slogError(err))
		writeError(w, http.StatusInternalServerError, "failed to save meal plan")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (r *Runtime) handleMealPlanRemove(w http.ResponseWriter, req *http.Request) {
	err := r.mealPlan.Remove(req.Context(), req.PathValue("id"))
	switch {
	case errors.Is(err, mealplan.ErrNotFound):
		writeError(w, http.StatusNotFound, "meal plan item not found")
	case err != nil:
		r.logger.Error("failed to update meal plan", slogError(err))
		writeError(w, http.StatusInternalServerError, "failed to update meal plan")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *Runtime) handleMealPlanClear(w http.ResponseWriter, req *http.Request) {
	if err := r.mealPlan.Clear(req.Context()); err != nil {
		r.logger.Error("failed to clear meal plan", slogError(err))
		writeError(w, http.StatusInternalServerError, "failed to clear meal plan")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) countAnalysis(req *http.Request, outcome string) {
	if r.analyses == nil {
		return
	}
	r.analyses.Add(req.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (r *Runtime) publishJSON(subject string, v any) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("failed to encode bus message", slog.String("subject", subject), slogError(err))
		return
	}
	if err := r.bus.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish bus message", slog.String("subject", subject), slogError(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

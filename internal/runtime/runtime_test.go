package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/gemini"
	"github.com/loqalabs/culinascan/internal/mealplan"
	"github.com/loqalabs/culinascan/internal/narration"
	"github.com/loqalabs/culinascan/internal/playback"
	"github.com/loqalabs/culinascan/internal/recipe"
	"github.com/loqalabs/culinascan/internal/speech"
	"github.com/loqalabs/culinascan/internal/vision"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

func newTestRuntime(t *testing.T, analyzer vision.Analyzer) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.MealPlan = config.MealPlanConfig{Mode: "ephemeral"}

	logger := newLogger()
	r := New(cfg, logger)
	r.analyzer = analyzer
	r.player = playback.NewController(playback.NewClockSink(), logger)
	r.session = narration.NewSession(speech.NewMockSynth(cfg.Speech.SampleRate, time.Second), r.player, narration.Options{Voice: "Kore"}, logger)
	r.spotlight = narration.NewSpotlight(nil, logger)
	store, err := mealplan.Open(context.Background(), cfg.MealPlan, logger)
	if err != nil {
		t.Fatalf("open meal plan: %v", err)
	}
	r.mealPlan = store
	r.ready.Store(true)
	t.Cleanup(func() {
		r.session.Stop()
		r.wg.Wait()
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(string(body)))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	r := newTestRuntime(t, vision.NewMockAnalyzer())
	h := r.routes()

	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
	r.ready.Store(false)
	if rec := do(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz when stopping: %d", rec.Code)
	}
}

func TestAnalyzeAcceptsJPEGAndDataURL(t *testing.T) {
	h := newTestRuntime(t, vision.NewMockAnalyzer()).routes()

	bodies := map[string][]byte{
		"raw":      jpeg,
		"data url": []byte("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/analyze", "", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
			}
			var result recipe.AnalysisResult
			if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(result.Recipes) == 0 || result.StorageTip == "" {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestAnalyzeRejectsGarbage(t *testing.T) {
	h := newTestRuntime(t, vision.NewMockAnalyzer()).routes()
	rec := do(t, h, http.MethodPost, "/v1/analyze", "text/plain", []byte("not an image!"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeFailureShowsGenericMessage(t *testing.T) {
	answer := `{"identifiedIngredients":["egg"],"recipes":[{"title":"Omelette","ingredientsUsed":["egg"],` +
		`"instructions":["Whisk."],"emoji":"🍳","prepTime":"5 mins","difficulty":"Easy","calories":200}],` +
		`"storageTip":"Keep cold."}`

	cases := map[string]http.HandlerFunc{
		"missing impact": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(gemini.Response{Candidates: []gemini.Candidate{{
				Content: gemini.Content{Parts: []gemini.Part{{Text: answer}}},
			}}})
		},
		"api error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			analyzer := vision.NewGeminiAnalyzer(gemini.NewClient(srv.URL, "key", time.Second), "vision-model")
			h := newTestRuntime(t, analyzer).routes()

			rec := do(t, h, http.MethodPost, "/v1/analyze", "image/jpeg", jpeg)
			if rec.Code != http.StatusBadGateway {
				t.Fatalf("expected 502, got %d", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != vision.FailureMessage {
				t.Fatalf("unexpected message %q", body["error"])
			}
		})
	}
}

func speaking(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/v1/narration", "", nil)
	var status narrationStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return status.Speaking
}

func waitSpeaking(t *testing.T, h http.Handler, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for speaking(t, h) != want {
		if time.Now().After(deadline) {
			t.Fatalf("speaking never became %q", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNarrationLifecycle(t *testing.T) {
	r := newTestRuntime(t, vision.NewMockAnalyzer())
	h := r.routes()

	rec := do(t, h, http.MethodPost, "/v1/narration", "application/json", []byte(`{"cardId":"omelette","text":"whisk the eggs well"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	waitSpeaking(t, h, "omelette")

	rec = do(t, h, http.MethodPost, "/v1/narration", "application/json",
		[]byte(`{"cardId":"soup","recipe":{"title":"Soup","instructions":["Simmer."]}}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	waitSpeaking(t, h, "soup")
	if r.player == nil || !r.player.Active() {
		t.Fatal("expected active playback")
	}

	if rec := do(t, h, http.MethodDelete, "/v1/narration?cardId=omelette", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("stop: %d", rec.Code)
	}
	if speaking(t, h) != "soup" {
		t.Fatal("stopping an idle card must not silence another")
	}

	if rec := do(t, h, http.MethodDelete, "/v1/narration", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("stop: %d", rec.Code)
	}
	if got := speaking(t, h); got != "" {
		t.Fatalf("expected silence, got %q", got)
	}
	if r.player.Active() {
		t.Fatal("playback should be stopped")
	}
}

func TestNarrationRejectsIncompleteRequest(t *testing.T) {
	h := newTestRuntime(t, vision.NewMockAnalyzer()).routes()
	for _, body := range []string{`{`, `{"cardId":"x"}`, `{"text":"hello"}`} {
		if rec := do(t, h, http.MethodPost, "/v1/narration", "application/json", []byte(body)); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestMealPlanEndpoints(t *testing.T) {
	h := newTestRuntime(t, vision.NewMockAnalyzer()).routes()

	rec := do(t, h, http.MethodPost, "/v1/mealplan", "application/json", []byte(`{"title":"Panzanella","difficulty":"Easy","calories":320}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	var item recipe.MealPlanItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.ID == "" || item.SavedAt == 0 || item.Title != "Panzanella" {
		t.Fatalf("unexpected item %+v", item)
	}

	rec = do(t, h, http.MethodGet, "/v1/mealplan", "", nil)
	var items []recipe.MealPlanItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("unexpected list %+v", items)
	}

	if rec := do(t, h, http.MethodDelete, "/v1/mealplan/"+item.ID, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("remove: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/v1/mealplan/"+item.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second remove: %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/v1/mealplan", "application/json", []byte(`{"calories":1}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("untitled recipe: %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/v1/mealplan", "application/json", []byte(`{"title":"Soup"}`))
	if rec := do(t, h, http.MethodDelete, "/v1/mealplan", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/mealplan", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty plan, got %s", rec.Body.String())
	}
}

func TestComponentSelection(t *testing.T) {
	cfg := config.Default()
	client := newGeminiClient(cfg.Gemini)

	cfg.Vision.Mode = "bogus"
	if _, err := newAnalyzer(cfg, client); err == nil {
		t.Fatal("expected unsupported vision mode error")
	}
	cfg.Speech.Mode = "exec"
	cfg.Speech.Command = ""
	if _, err := newSynthesizer(cfg, client); err == nil {
		t.Fatal("expected exec synth without command to fail")
	}
	if _, err := newSink(config.PlaybackConfig{Sink: "bus"}, nil, newLogger()); err == nil {
		t.Fatal("expected bus sink without bus to fail")
	}
	sink, err := newSink(config.PlaybackConfig{Sink: "wav", OutputDir: t.TempDir()}, nil, newLogger())
	if err != nil || sink == nil {
		t.Fatalf("wav sink: %v", err)
	}
}

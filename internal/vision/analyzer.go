// Package vision builds ingredient analysis requests for the hosted vision model and
// checks its structured answers.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/culinascan/internal/gemini"
	"github.com/loqalabs/culinascan/internal/recipe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrAPI covers transport, auth and status failures of the vision endpoint.
	ErrAPI = errors.New("vision request failed")
	// ErrSchemaViolation means the answer was empty, malformed or missing fields.
	ErrSchemaViolation = errors.New("vision response violates schema")
)

// FailureMessage is shown to users for any analysis failure.
const FailureMessage = "Oops! We couldn't analyze the image. Please try again with a clearer photo of your ingredients."

const instruction = `You are CulinaScan, a sustainable cooking assistant.
Look at the photo and:
1. List every edible ingredient you can identify.
2. Write exactly two gourmet, waste-reducing recipes using them.
3. For each recipe give title, emoji, ingredientsUsed and instructions,
   prepTime (for example "15 mins"), difficulty ("Easy", "Medium" or "Hard")
   and calories (estimated total per serving).
4. Give one storage tip that helps the ingredients last longer.
5. Estimate the sustainability impact: co2SavedKg, score and reasoning.
Answer with JSON only.`

// Analyzer turns an ingredient photo into recipes.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (recipe.AnalysisResult, error)
}

type geminiAnalyzer struct {
	client *gemini.Client
	model  string
}

func NewGeminiAnalyzer(client *gemini.Client, model string) Analyzer {
	return &geminiAnalyzer{client: client, model: model}
}

// BuildRequest assembles the instruction, the JPEG image and the response schema.
func BuildRequest(image []byte) gemini.Request {
	return gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{
			{Text: instruction},
			{InlineData: &gemini.Blob{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(image)}},
		}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   ResponseSchema,
		},
	}
}

func (a *geminiAnalyzer) Analyze(ctx context.Context, image []byte) (recipe.AnalysisResult, error) {
	ctx, span := otel.Tracer("github.com/loqalabs/culinascan/vision").Start(ctx, "vision.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("image.bytes", len(image)), attribute.String("model", a.model))

	if len(image) == 0 {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: empty image", ErrAPI)
	}
	resp, err := a.client.GenerateContent(ctx, a.model, BuildRequest(image))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return recipe.AnalysisResult{}, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	result, err := ParseResult([]byte(resp.Text()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema violation")
		return recipe.AnalysisResult{}, err
	}
	span.SetAttributes(attribute.Int("recipes", len(result.Recipes)))
	return result, nil
}

// ImageFromDataURL accepts either a data URL or bare base64 text and returns the image bytes.
func ImageFromDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if _, after, ok := strings.Cut(s, ","); ok {
			s = after
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}

package vision

import (
	"context"
	"fmt"

	"github.com/loqalabs/culinascan/internal/recipe"
)

type mockAnalyzer struct{}

// NewMockAnalyzer answers every photo with the same pantry-staples analysis.
func NewMockAnalyzer() Analyzer { return mockAnalyzer{} }

func (mockAnalyzer) Analyze(ctx context.Context, image []byte) (recipe.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	if len(image) == 0 {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: empty image", ErrAPI)
	}
	return recipe.AnalysisResult{
		IdentifiedIngredients: []string{"tomato", "onion", "stale bread"},
		Recipes: []recipe.Recipe{
			{
				Title:           "Panzanella",
				IngredientsUsed: []string{"tomato", "onion", "stale bread"},
				Instructions:    []string{"Tear the bread and toast it.", "Toss with tomato and onion."},
				Emoji:           "🥗",
				PrepTime:        "15 mins",
				Difficulty:      recipe.DifficultyEasy,
				Calories:        320,
			},
			{
				Title:           "Tomato Bread Soup",
				IngredientsUsed: []string{"tomato", "stale bread"},
				Instructions:    []string{"Simmer the tomatoes.", "Stir in the bread until thick."},
				Emoji:           "🍲",
				PrepTime:        "30 mins",
				Difficulty:      recipe.DifficultyMedium,
				Calories:        410,
			},
		},
		StorageTip: "Keep tomatoes out of the fridge, stem side down.",
		Impact:     recipe.SustainabilityImpact{CO2SavedKg: 0.8, Score: 82, Reasoning: "Uses bread that would be thrown away."},
	}, nil
}

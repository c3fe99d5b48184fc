package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/loqalabs/culinascan/internal/gemini"
	"github.com/loqalabs/culinascan/internal/recipe"
)

// ResponseSchema is the structure the model must answer with.
var ResponseSchema = gemini.Object(map[string]*gemini.Schema{
	"identifiedIngredients": gemini.ArrayOf(gemini.String()),
	"recipes": gemini.ArrayOf(gemini.Object(map[string]*gemini.Schema{
		"title":           gemini.String(),
		"ingredientsUsed": gemini.ArrayOf(gemini.String()),
		"instructions":    gemini.ArrayOf(gemini.String()),
		"emoji":           gemini.String(),
		"prepTime":        gemini.String(),
		"difficulty": {
			Type: gemini.TypeString,
			Enum: []string{string(recipe.DifficultyEasy), string(recipe.DifficultyMedium), string(recipe.DifficultyHard)},
		},
		"calories": gemini.Integer(),
	}, "title", "ingredientsUsed", "instructions", "emoji", "prepTime", "difficulty", "calories")),
	"storageTip": gemini.String(),
	"impact": gemini.Object(map[string]*gemini.Schema{
		"co2SavedKg": gemini.Number(),
		"score":      gemini.Integer(),
		"reasoning":  gemini.String(),
	}, "co2SavedKg", "score", "reasoning"),
}, "identifiedIngredients", "recipes", "storageTip", "impact")

// Pointer fields tell a missing key apart from a zero value.
type wireResult struct {
	IdentifiedIngredients []string     `json:"identifiedIngredients" validate:"required"`
	Recipes               []wireRecipe `json:"recipes" validate:"required,min=1,dive"`
	StorageTip            *string      `json:"storageTip" validate:"required"`
	Impact                *wireImpact  `json:"impact" validate:"required"`
}

type wireRecipe struct {
	Title           *string  `json:"title" validate:"required"`
	IngredientsUsed []string `json:"ingredientsUsed" validate:"required"`
	Instructions    []string `json:"instructions" validate:"required"`
	Emoji           *string  `json:"emoji" validate:"required"`
	PrepTime        *string  `json:"prepTime" validate:"required"`
	Difficulty      *string  `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	Calories        *int     `json:"calories" validate:"required"`
}

type wireImpact struct {
	CO2SavedKg *float64 `json:"co2SavedKg" validate:"required"`
	Score      *int     `json:"score" validate:"required"`
	Reasoning  *string  `json:"reasoning" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseResult decodes and checks a model answer. Every failure wraps ErrSchemaViolation.
func ParseResult(data []byte) (recipe.AnalysisResult, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: empty response", ErrSchemaViolation)
	}
	var wire wireResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := validate.Struct(wire); err != nil {
		return recipe.AnalysisResult{}, fmt.Errorf("%w: %s", ErrSchemaViolation, describe(err))
	}
	return wire.toResult(), nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "wireResult.")
		fields = append(fields, fmt.Sprintf("%s (%s)", field, fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

func (w wireResult) toResult() recipe.AnalysisResult {
	out := recipe.AnalysisResult{
		IdentifiedIngredients: w.IdentifiedIngredients,
		StorageTip:            *w.StorageTip,
		Impact: recipe.SustainabilityImpact{
			CO2SavedKg: *w.Impact.CO2SavedKg,
			Score:      *w.Impact.Score,
			Reasoning:  *w.Impact.Reasoning,
		},
		Recipes: make([]recipe.Recipe, 0, len(w.Recipes)),
	}
	for _, r := range w.Recipes {
		out.Recipes = append(out.Recipes, recipe.Recipe{
			Title:           *r.Title,
			IngredientsUsed: r.IngredientsUsed,
			Instructions:    r.Instructions,
			Emoji:           *r.Emoji,
			PrepTime:        *r.PrepTime,
			Difficulty:      recipe.Difficulty(*r.Difficulty),
			Calories:        *r.Calories,
		})
	}
	return out
}

package recipe

// Difficulty grades how demanding a recipe is.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Recipe is one waste-reducing recipe generated from the scanned ingredients.
type Recipe struct {
	Title           string     `json:"title"`
	IngredientsUsed []string   `json:"ingredientsUsed"`
	Instructions    []string   `json:"instructions"`
	Emoji           string     `json:"emoji"`
	PrepTime        string     `json:"prepTime"`
	Difficulty      Difficulty `json:"difficulty"`
	Calories        int        `json:"calories"`
}

// SustainabilityImpact scores how much waste the recipes avoid.
type SustainabilityImpact struct {
	CO2SavedKg float64 `json:"co2SavedKg"`
	Score      int     `json:"score"`
	Reasoning  string  `json:"reasoning"`
}

// AnalysisResult is the full answer for one ingredient photo.
type AnalysisResult struct {
	IdentifiedIngredients []string             `json:"identifiedIngredients"`
	Recipes               []Recipe             `json:"recipes"`
	StorageTip            string               `json:"storageTip"`
	Impact                SustainabilityImpact `json:"impact"`
}

// MealPlanItem is a recipe saved to the meal plan.
type MealPlanItem struct {
	Recipe
	ID      string `json:"id"`
	SavedAt int64  `json:"savedAt"`
}

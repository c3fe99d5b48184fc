package narration

import (
	"fmt"
	"strings"

	"github.com/loqalabs/culinascan/internal/recipe"
)

// RecipeScript renders the text a card reads aloud: title, ingredients, then numbered steps.
func RecipeScript(r recipe.Recipe) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Title))
	b.WriteString(".")
	if len(r.IngredientsUsed) > 0 {
		b.WriteString(" You will need ")
		b.WriteString(joinList(r.IngredientsUsed))
		b.WriteString(".")
	}
	for i, step := range r.Instructions {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		fmt.Fprintf(&b, " Step %d. %s", i+1, step)
		if !strings.HasSuffix(step, ".") {
			b.WriteString(".")
		}
	}
	return b.String()
}

func joinList(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

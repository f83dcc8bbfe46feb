package checklist

import (
	"math"

	"handover/internal/schema"
)

// Completion computes the 0–100 completion percentage for one
// checklist. Only mandatory fields count; a field flagged not relevant
// (directly or via its parent group) leaves both the numerator and the
// denominator.
func Completion(fields []schema.Flat, bag map[string]any, ctx Context) int {
	total, complete := 0, 0
	for _, f := range fields {
		meta := MetaFor(bag, f)
		if meta.NotRelevant || !f.Field.Mandatory() {
			continue
		}
		total++
		if IsComplete(f, ValueFor(bag, f), meta, ctx) {
			complete++
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(complete) / float64(total)))
}

// Overall combines the two independently computed checklist
// percentages into the project percentage: a plain average, not a
// recomputation over the union of fields.
func Overall(sales, launch int) int {
	return int(math.Round(float64(sales+launch) / 2))
}

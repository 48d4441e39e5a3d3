package persistence

import (
	"strings"
)

// historySortColumns order movement history: business time, then append order
var historySortColumns = []string{"occurred_at", "id"}

// ValidateSortOrder normalizes orderDir to ASC or DESC, falling back to
// defaultDir for anything else
func ValidateSortOrder(orderDir, defaultDir string) string {
	switch strings.ToUpper(strings.TrimSpace(orderDir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	}
	if strings.EqualFold(defaultDir, "DESC") {
		return "DESC"
	}
	return "ASC"
}

// historyOrder builds the ORDER BY clause for movement history pages
func historyOrder(orderDir string) string {
	dir := ValidateSortOrder(orderDir, "ASC")
	parts := make([]string, len(historySortColumns))
	for i, col := range historySortColumns {
		parts[i] = col + " " + dir
	}
	return strings.Join(parts, ", ")
}

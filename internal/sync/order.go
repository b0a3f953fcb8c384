package sync

import (
	"sort"

	"github.com/marcus/carelog/internal/models"
)

// SortOperations returns a copy of ops in processing order: origination
// timestamp ascending, then operation id. The result does not depend on the
// order of the input.
func SortOperations(ops []models.Operation) []models.Operation {
	sorted := make([]models.Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Timestamp.Compare(sorted[j].Timestamp); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Chunk splits items into consecutive slices of at most size elements,
// preserving order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

package history

import (
	"fmt"
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Record
	Kept    int
}

// Prune removes old records, keeping only the most recent keep.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	records, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	if len(records) <= keep {
		result.Kept = len(records)
		return result, nil
	}

	result.Kept = keep
	for _, rec := range records[keep:] {
		if err := m.Delete(rec.ID); err != nil {
			return nil, fmt.Errorf("failed to delete record %s: %w", rec.ID, err)
		}
		result.Deleted = append(result.Deleted, rec)
	}
	return result, nil
}

package history

import (
	"testing"
	"time"
)

func TestManager_Prune(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		records     int
		keep        int
		wantDeleted int
		wantKept    int
	}{
		{"nothing to prune", 3, 5, 0, 3},
		{"exact", 3, 3, 0, 3},
		{"prune oldest", 5, 2, 3, 2},
		{"prune all", 2, 0, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			for i := 0; i < tt.records; i++ {
				saveAt(t, m, base.Add(time.Duration(i)*time.Hour), "FINISHED")
			}

			result, err := m.Prune(tt.keep)
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if len(result.Deleted) != tt.wantDeleted || result.Kept != tt.wantKept {
				t.Errorf("Prune() deleted %d kept %d, want %d/%d", len(result.Deleted), result.Kept, tt.wantDeleted, tt.wantKept)
			}

			remaining, _ := m.List()
			if len(remaining) != tt.wantKept {
				t.Errorf("%d records remain, want %d", len(remaining), tt.wantKept)
			}
			for _, d := range result.Deleted {
				for _, r := range remaining {
					if r.StartedAt.Before(d.StartedAt) {
						t.Errorf("kept %v but deleted newer %v", r.StartedAt, d.StartedAt)
					}
				}
			}
		})
	}
}

func TestManager_PruneNegative(t *testing.T) {
	if _, err := newTestManager(t).Prune(-1); err == nil {
		t.Error("Prune(-1) should fail")
	}
}

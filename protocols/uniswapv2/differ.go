package uniswapv2

// PoolSetDiff is the delta between two pool snapshots.
type PoolSetDiff struct {
	Additions []PoolView `json:"additions,omitempty"`
	Updates   []PoolView `json:"updates,omitempty"`
	Deletions []uint64   `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolSetDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two pool snapshots. Both slices
// are converted to ID-keyed maps for O(1) lookups; the new map yields
// additions and updates, the old map yields deletions. A pool counts as
// updated when its reserves or share supply moved; manual field checks
// rather than reflect.DeepEqual keep this on the hot path.
func Differ(old, new []PoolView) PoolSetDiff {
	oldPools := make(map[uint64]PoolView, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}
	newPools := make(map[uint64]PoolView, len(new))
	for _, pool := range new {
		newPools[pool.ID] = pool
	}

	var additions []PoolView
	var updates []PoolView
	var deletions []uint64

	for newID, newPool := range newPools {
		oldPool, exists := oldPools[newID]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		if oldPool.Reserve0.Cmp(newPool.Reserve0) != 0 ||
			oldPool.Reserve1.Cmp(newPool.Reserve1) != 0 ||
			oldPool.TotalSupply.Cmp(newPool.TotalSupply) != 0 {
			updates = append(updates, newPool)
		}
	}

	for oldID := range oldPools {
		if _, exists := newPools[oldID]; !exists {
			deletions = append(deletions, oldID)
		}
	}

	return PoolSetDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

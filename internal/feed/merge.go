package feed

// MergeFirstWins concatenates sets in order and keeps the first record seen
// for every id. Ordering follows first appearance.
func MergeFirstWins[T Record](sets ...[]T) []T {
	total := 0
	for _, set := range sets {
		total += len(set)
	}

	seen := make(map[string]struct{}, total)
	out := make([]T, 0, total)
	for _, set := range sets {
		for _, record := range set {
			id := record.RecordID()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, record)
		}
	}
	return out
}

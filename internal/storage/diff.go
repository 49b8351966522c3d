package storage

// diffByKey computes change indices between two ordered snapshots.
// Deletions index old; insertions and modifications index next.
func diffByKey[T any](old, next []T, key func(T) string, equal func(a, b T) bool) (deletions, insertions, modifications []int) {
	oldIndex := make(map[string]int, len(old))
	for i, item := range old {
		oldIndex[key(item)] = i
	}
	nextKeys := make(map[string]struct{}, len(next))

	for i, item := range next {
		k := key(item)
		nextKeys[k] = struct{}{}
		j, ok := oldIndex[k]
		if !ok {
			insertions = append(insertions, i)
			continue
		}
		if !equal(old[j], item) {
			modifications = append(modifications, i)
		}
	}

	for i, item := range old {
		if _, ok := nextKeys[key(item)]; !ok {
			deletions = append(deletions, i)
		}
	}
	return deletions, insertions, modifications
}

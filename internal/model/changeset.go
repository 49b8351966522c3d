package model

// ChangeKind tags a ChangeSet.
type ChangeKind int

const (
	ChangeInitial ChangeKind = iota
	ChangeUpdate
	ChangeError
)

// ChangeSet is one notification of a live, ordered result set.
// Deletions index the previous snapshot; Insertions and Modifications index Items.
type ChangeSet[T any] struct {
	Kind          ChangeKind
	Items         []T
	Deletions     []int
	Insertions    []int
	Modifications []int
	Err           error
}

func InitialChange[T any](items []T) ChangeSet[T] {
	return ChangeSet[T]{Kind: ChangeInitial, Items: items}
}

func UpdateChange[T any](items []T, deletions, insertions, modifications []int) ChangeSet[T] {
	return ChangeSet[T]{
		Kind:          ChangeUpdate,
		Items:         items,
		Deletions:     deletions,
		Insertions:    insertions,
		Modifications: modifications,
	}
}

func ErrorChange[T any](err error) ChangeSet[T] {
	return ChangeSet[T]{Kind: ChangeError, Err: err}
}

// Inserted returns the items added by an update. Initial and error change sets yield nothing.
func (c ChangeSet[T]) Inserted() []T {
	if c.Kind != ChangeUpdate {
		return nil
	}
	out := make([]T, 0, len(c.Insertions))
	for _, idx := range c.Insertions {
		if idx >= 0 && idx < len(c.Items) {
			out = append(out, c.Items[idx])
		}
	}
	return out
}

// HasMembershipChange reports whether the set gained or lost items, or is initial or failed.
func (c ChangeSet[T]) HasMembershipChange() bool {
	switch c.Kind {
	case ChangeUpdate:
		return len(c.Insertions) > 0 || len(c.Deletions) > 0
	default:
		return true
	}
}

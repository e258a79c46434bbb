package core

// Entity is implemented by every id-keyed, timestamped collection member.
type Entity interface {
	EntityID() string
	Updated() string
}

// Upsert replaces the entity with the same id or appends it.
func Upsert[T Entity](list []T, item T) []T {
	out := make([]T, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.EntityID() == item.EntityID() {
			out = append(out, item)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, item)
	}
	return out
}

// RemoveByID drops every entity with the given id. The second return value
// reports whether anything was removed.
func RemoveByID[T Entity](list []T, id string) ([]T, bool) {
	out := make([]T, 0, len(list))
	removed := false
	for _, existing := range list {
		if existing.EntityID() == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}

// FindByID returns the first entity with the given id.
func FindByID[T Entity](list []T, id string) (T, bool) {
	for _, existing := range list {
		if existing.EntityID() == id {
			return existing, true
		}
	}
	var zero T
	return zero, false
}

// Later reports whether timestamp a sorts after b. ISO-8601 strings in a
// common zone compare correctly as plain strings.
func Later(a, b string) bool {
	return a > b
}

// MaxTimestamp returns the later of two timestamps.
func MaxTimestamp(a, b string) string {
	if Later(a, b) {
		return a
	}
	return b
}

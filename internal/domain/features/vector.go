package features

import (
	"sort"
)

// Map is the unordered output of a feature builder.
type Map map[string]float64

// Merge copies every entry of other into m, overwriting duplicates.
func (m Map) Merge(other Map) Map {
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Keys returns the keys in lexicographic order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reindex orders m by names. Any key present on only one side is a contract
// violation and yields a *MismatchError; nothing is defaulted.
func (m Map) Reindex(names []string) ([]float64, error) {
	row := make([]float64, len(names))
	var missing []string
	for i, name := range names {
		v, ok := m[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		row[i] = v
	}

	var extra []string
	if len(m) != len(names)-len(missing) {
		known := make(map[string]struct{}, len(names))
		for _, name := range names {
			known[name] = struct{}{}
		}
		for k := range m {
			if _, ok := known[k]; !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
	}

	if len(missing) > 0 || len(extra) > 0 {
		return nil, &MismatchError{Missing: missing, Extra: extra}
	}
	return row, nil
}

// Densify orders m by names, filling absent keys with 0. Keys not in names are
// ignored. Used only while building the training matrix.
func (m Map) Densify(names []string) []float64 {
	row := make([]float64, len(names))
	for i, name := range names {
		row[i] = m[name]
	}
	return row
}

// Names returns the sorted union of keys across maps. This is the canonical
// column order persisted with a trained model.
func Names(maps ...Map) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

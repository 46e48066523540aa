package domain

import "slices"

// AllAssociations is the virtual association meaning "no filter". It is
// synthesized on read and never persisted.
const AllAssociations = "All"

// Association is a building or community that scopes tool visibility.
type Association struct {
	Name string `json:"name"`
}

// IsAll reports whether name selects every association.
func IsAll(name string) bool {
	return name == "" || name == AllAssociations
}

// WithAll returns list with the All association at the front unless an entry
// named exactly "All" is already present.
func WithAll(list []Association) []Association {
	if slices.ContainsFunc(list, func(a Association) bool { return a.Name == AllAssociations }) {
		return list
	}
	out := make([]Association, 0, len(list)+1)
	out = append(out, Association{Name: AllAssociations})
	return append(out, list...)
}

package ncfs

import (
	"strconv"
	"strings"
)

// Reserved entry names.
const (
	attributesDirName = ".attributes"
	dataFileName      = "data"
	dimsFileName      = "dimensions"
)

// sanitizeName turns an entity name into a legal single path segment.
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, name)
	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return name
}

// uniqueNames synthesizes one entry name per entity, in declaration
// order. Reserved names are claimed first; a name already taken gets the
// smallest free suffix "-2", "-3", ...
func uniqueNames(reserved []string, names []string) []string {
	taken := make(map[string]bool, len(reserved)+len(names))
	for _, r := range reserved {
		taken[r] = true
	}
	out := make([]string, len(names))
	for i, n := range names {
		base := sanitizeName(n)
		name := base
		for k := 2; taken[name]; k++ {
			name = base + "-" + strconv.Itoa(k)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// nameIndex maps synthesized names back to entity indices.
func nameIndex(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}

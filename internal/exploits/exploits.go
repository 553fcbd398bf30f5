// Package exploits holds the fixed exploit-category catalog that scopes
// what the external analyzer is allowed to consider.
package exploits

import "strings"

// Categories is the fixed enumeration of exploit-category labels. The
// analyzer matches on these exact strings.
var Categories = []string{
	"Unauthenticated port bypass",
	"Default credentials",
	"Missing encryption protocols",
	"Unpatched software exploits",
	"Other",
}

// Valid reports whether a label is part of the catalog.
func Valid(label string) bool {
	for _, c := range Categories {
		if label == c {
			return true
		}
	}
	return false
}

// Filter returns the labels that belong to the catalog, preserving
// order. Unrecognized labels are dropped without error.
func Filter(labels []string) []string {
	valid := make([]string, 0, len(labels))
	for _, label := range labels {
		if Valid(label) {
			valid = append(valid, label)
		}
	}
	return valid
}

// CommandArg renders the --allowed-exploits value for the analyzer. An
// explicit list is lower-cased; an empty list falls back to the full
// catalog in its original casing, which the analyzer treats as "all
// categories".
func CommandArg(labels []string) string {
	if len(labels) == 0 {
		return strings.Join(Categories, ",")
	}
	lowered := make([]string, len(labels))
	for i, label := range labels {
		lowered[i] = strings.ToLower(label)
	}
	return strings.Join(lowered, ",")
}

package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/agentic-research/kiln/api"
)

// Delimiter separates a namespace from the original key. Namespaces can never
// contain it, so splitting at its first occurrence recovers both halves.
const Delimiter = "/"

// DefaultNamespace holds the primary content entries.
const DefaultNamespace = "data"

var namespacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateNamespace reports whether ns is a legal namespace name.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("%w: namespace %q must match %s", ErrConfig, ns, namespacePattern)
	}
	return nil
}

// JoinKey builds the fully namespaced key for key.
func JoinKey(ns, key string) string {
	return ns + Delimiter + key
}

// SplitKey is the inverse of JoinKey.
func SplitKey(full string) (ns, key string, ok bool) {
	return strings.Cut(full, Delimiter)
}

// Assign returns copies of entries with their keys prefixed by ns.
func Assign(ns string, entries []api.Entry) []api.Entry {
	out := make([]api.Entry, len(entries))
	for i, e := range entries {
		out[i] = api.Entry{Key: JoinKey(ns, e.Key), Value: e.Value, Metadata: e.Metadata}
	}
	return out
}

// CheckUnique fails with every duplicated key when entries do not form a set.
func CheckUnique(entries []api.Entry) error {
	counts := make(map[string]int, len(entries))
	var order []string
	for _, e := range entries {
		if counts[e.Key] == 1 {
			order = append(order, e.Key)
		}
		counts[e.Key]++
	}

	var result *multierror.Error
	for _, key := range order {
		result = multierror.Append(result, &CollisionError{Key: key, Count: counts[key]})
	}
	return result.ErrorOrNil()
}

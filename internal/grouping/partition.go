// Package grouping finds the sets of neuron and synapse groups that can share
// one merged struct for each role.
package grouping

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// Class is one set of mutually mergeable items. Members[0] is the archetype.
type Class[T any] struct {
	Fingerprint string
	Members     []T
}

// Partition splits items into classes. Items are bucketed by fingerprint
// first; within a bucket each item joins the first class whose archetype
// accepts it, or starts a new class. Classes come out in the order their
// archetypes appear in items, and members keep their input order.
func Partition[T any](items []T, fingerprint func(T) string, canMerge func(archetype, item T) bool) []Class[T] {
	var classes []Class[T]
	buckets := make(map[string][]int)
	for _, item := range items {
		fp := fingerprint(item)
		joined := false
		for _, c := range buckets[fp] {
			if canMerge(classes[c].Members[0], item) {
				classes[c].Members = append(classes[c].Members, item)
				joined = true
				break
			}
		}
		if joined {
			continue
		}
		buckets[fp] = append(buckets[fp], len(classes))
		classes = append(classes, Class[T]{Fingerprint: fp, Members: []T{item}})
	}
	return classes
}

// Fingerprint digests structural facts into a short stable key. Parts
// prefixed with a sortable key are sorted so that set-like facts hash the
// same whatever their order.
func Fingerprint(fixed []string, unordered ...[]string) string {
	parts := append([]string(nil), fixed...)
	for _, set := range unordered {
		sorted := append([]string(nil), set...)
		sort.Strings(sorted)
		parts = append(parts, "{"+strings.Join(sorted, ",")+"}")
	}
	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(digest[:8])
}

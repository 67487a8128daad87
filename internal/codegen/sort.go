package codegen

// MatchChildren orders children so that position i can be merged with
// archetype[i]. Each archetype slot takes the first unused child, in the
// child's original order, that canMerge accepts. When that greedy pass gets
// stuck an augmenting path search is tried before giving up, so a valid
// ordering is found whenever one exists.
func MatchChildren[C any](archetype, children []C, canMerge func(a, b C) bool) ([]C, bool) {
	if len(archetype) != len(children) {
		return nil, false
	}
	if out, ok := greedyMatch(archetype, children, canMerge); ok {
		return out, true
	}
	return augmentingMatch(archetype, children, canMerge)
}

func greedyMatch[C any](archetype, children []C, canMerge func(a, b C) bool) ([]C, bool) {
	used := make([]bool, len(children))
	out := make([]C, len(archetype))
	for i, a := range archetype {
		found := false
		for j, c := range children {
			if !used[j] && canMerge(a, c) {
				used[j] = true
				out[i] = c
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return out, true
}

func augmentingMatch[C any](archetype, children []C, canMerge func(a, b C) bool) ([]C, bool) {
	slotOf := make([]int, len(children))
	for j := range slotOf {
		slotOf[j] = -1
	}

	var try func(slot int, seen []bool) bool
	try = func(slot int, seen []bool) bool {
		for j, c := range children {
			if seen[j] || !canMerge(archetype[slot], c) {
				continue
			}
			seen[j] = true
			if slotOf[j] < 0 || try(slotOf[j], seen) {
				slotOf[j] = slot
				return true
			}
		}
		return false
	}

	for slot := range archetype {
		if !try(slot, make([]bool, len(children))) {
			return nil, false
		}
	}
	out := make([]C, len(archetype))
	for j, slot := range slotOf {
		out[slot] = children[j]
	}
	return out, true
}

// SortChildren orders the children of every member against the archetype's
// children. members[0] is expected to be the archetype's own list. Failure
// to find an ordering is an internal error.
func SortChildren[C any](what string, members [][]C, canMerge func(a, b C) bool) [][]C {
	if len(members) == 0 {
		fatalf("SortChildren", "%s: no members", what)
	}
	archetype := members[0]
	sorted := make([][]C, len(members))
	for m, children := range members {
		if len(children) != len(archetype) {
			fatalf("SortChildren", "%s: member %d has %d children, archetype has %d", what, m, len(children), len(archetype))
		}
		out, ok := MatchChildren(archetype, children, canMerge)
		if !ok {
			fatalf("SortChildren", "%s: member %d has no ordering compatible with the archetype", what, m)
		}
		sorted[m] = out
	}
	return sorted
}

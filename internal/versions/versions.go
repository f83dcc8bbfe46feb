// Package versions reconstructs and maintains a project's launch
// version history. Historical documents mix legacy untagged values
// with {value, version} items, so the canonical list is rebuilt lazily
// from the stored data the first time a project without an explicit
// history is read.
package versions

import (
	"errors"
	"sort"

	"handover/internal/checklist"
	"handover/internal/schema"
)

var (
	// ErrCurrentVersion is returned when deleting the version the
	// project currently points at.
	ErrCurrentVersion = errors.New("cannot delete the current version")
	// ErrUnknownVersion is returned when deleting a version that is
	// not in the history.
	ErrUnknownVersion = errors.New("version not in history")
)

// Reconcile produces the canonical sorted version list for a project.
// Both states start from the full 1..current range so a second pass
// over a freshly seeded history returns the same list. With no stored
// history it additionally scans every versioned location in the launch
// value bag for observed tags; the returned seeded flag tells the
// caller the result should be persisted. With a stored history it
// only unions the stored entries onto the range; item data is trusted
// once a history exists, so a value appended later with an
// out-of-range tag will not reappear in the list.
func Reconcile(current int, history []int, launchFields []schema.Flat, launchBag map[string]any) (list []int, seeded bool) {
	if current < 1 {
		current = 1
	}
	set := map[int]bool{}
	for v := 1; v <= current; v++ {
		set[v] = true
	}
	if len(history) == 0 {
		for _, v := range scan(launchFields, launchBag) {
			set[v] = true
		}
		return sorted(set), true
	}
	for _, v := range history {
		if v > 0 {
			set[v] = true
		}
	}
	return sorted(set), false
}

// scan collects every version tag stored in the bag's versioned
// collections: tagged items of hasVersion fields, and the id→version
// side-maps of integration-backed selections.
func scan(fields []schema.Flat, bag map[string]any) []int {
	var out []int
	for _, f := range fields {
		if f.Field.HasVersion {
			if items, ok := checklist.List(checklist.ValueFor(bag, f)); ok {
				for _, it := range items {
					out = append(out, checklist.ItemVersion(it))
				}
			}
		}
		if f.Field.IntegrationBacked() {
			for _, v := range checklist.MetaFor(bag, f).VersionsByID {
				if v > 0 {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// FilterByVersion keeps the items tagged with target. Legacy plain
// values and untagged objects count as version 1.
func FilterByVersion(items []any, target int) []any {
	var out []any
	for _, it := range items {
		if checklist.ItemVersion(it) == target {
			out = append(out, it)
		}
	}
	return out
}

// FilterIDsByVersion keeps the selection ids whose entry in the
// side-map equals target. Ids absent from the map are version 1.
func FilterIDsByVersion(ids []string, versionsByID map[string]int, target int) []string {
	var out []string
	for _, id := range ids {
		v := versionsByID[id]
		if v < 1 {
			v = 1
		}
		if v == target {
			out = append(out, id)
		}
	}
	return out
}

// Advance extends the history for a new current version: every
// integer from 1 through newCurrent is present afterwards, so the
// list never carries gaps below the pointer.
func Advance(history []int, newCurrent int) []int {
	set := make(map[int]bool, len(history)+newCurrent)
	for _, v := range history {
		if v > 0 {
			set[v] = true
		}
	}
	for v := 1; v <= newCurrent; v++ {
		set[v] = true
	}
	return sorted(set)
}

// Delete removes target from the history. The current version must be
// reassigned before it can be deleted; removing the last entry leaves
// [1] rather than an empty list.
func Delete(history []int, current, target int) ([]int, error) {
	if target == current {
		return nil, ErrCurrentVersion
	}
	found := false
	out := make([]int, 0, len(history))
	for _, v := range history {
		if v == target {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		return nil, ErrUnknownVersion
	}
	if len(out) == 0 {
		out = []int{1}
	}
	sort.Ints(out)
	return out, nil
}

func sorted(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ABOUTME: Query filter sent inside REQ frames, with local match evaluation
// ABOUTME: Tag conditions marshal as "#x" keys per the wire protocol

package event

import (
	"encoding/json"
	"sort"
)

// Filter restricts which events a subscription yields. Zero-value slices
// and maps mean "no condition on this dimension"; conditions across
// dimensions are conjunctive, values within one dimension disjunctive.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
}

// MarshalJSON emits the wire shape: plural keys for each dimension and
// "#"-prefixed keys for tag conditions, omitting empty dimensions.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 8)
	if len(f.IDs) > 0 {
		obj["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		obj["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		obj["kinds"] = f.Kinds
	}
	for name, vals := range f.Tags {
		if len(vals) > 0 {
			obj["#"+name] = vals
		}
	}
	if f.Since > 0 {
		obj["since"] = f.Since
	}
	if f.Until > 0 {
		obj["until"] = f.Until
	}
	if f.Limit > 0 {
		obj["limit"] = f.Limit
	}
	return json.Marshal(obj)
}

// UnmarshalJSON parses the wire shape back into the struct form.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for key, val := range raw {
		var err error
		switch key {
		case "ids":
			err = json.Unmarshal(val, &f.IDs)
		case "authors":
			err = json.Unmarshal(val, &f.Authors)
		case "kinds":
			err = json.Unmarshal(val, &f.Kinds)
		case "since":
			err = json.Unmarshal(val, &f.Since)
		case "until":
			err = json.Unmarshal(val, &f.Until)
		case "limit":
			err = json.Unmarshal(val, &f.Limit)
		default:
			if len(key) > 1 && key[0] == '#' {
				var vals []string
				if err = json.Unmarshal(val, &vals); err == nil {
					if f.Tags == nil {
						f.Tags = make(map[string][]string)
					}
					f.Tags[key[1:]] = vals
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether ev satisfies every condition of the filter.
// Limit is a result-count bound, not a per-event condition, and is
// ignored here.
func (f Filter) Matches(ev *Event) bool {
	if ev == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && ev.CreatedAt > f.Until {
		return false
	}
	for name, wanted := range f.Tags {
		if len(wanted) == 0 {
			continue
		}
		found := false
		for _, have := range ev.Tags.All(name) {
			if containsString(wanted, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SortByCreatedAt orders events newest first, breaking CreatedAt ties by
// ascending ID so results are deterministic.
func SortByCreatedAt(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}

// ABOUTME: Tests for filter wire encoding and local match evaluation

package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_MarshalJSON_OmitsEmptyDimensions(t *testing.T) {
	data, err := json.Marshal(Filter{Kinds: []int{30078}, Limit: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kinds":[30078],"limit":1}`, string(data))
}

func TestFilter_MarshalJSON_TagKeys(t *testing.T) {
	f := Filter{
		Authors: []string{"pk"},
		Kinds:   []int{1, 1111},
		Tags:    map[string][]string{"a": {"30023:pk:post"}},
		Since:   100,
		Until:   200,
	}

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"authors":["pk"],"kinds":[1,1111],"#a":["30023:pk:post"],"since":100,"until":200}`,
		string(data))
}

func TestFilter_UnmarshalJSON_RoundTrip(t *testing.T) {
	in := `{"ids":["aa"],"authors":["pk"],"kinds":[10002],"#d":["site-config"],"since":5,"until":9,"limit":3}`

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(in), &f))

	assert.Equal(t, []string{"aa"}, f.IDs)
	assert.Equal(t, []string{"pk"}, f.Authors)
	assert.Equal(t, []int{10002}, f.Kinds)
	assert.Equal(t, map[string][]string{"d": {"site-config"}}, f.Tags)
	assert.Equal(t, int64(5), f.Since)
	assert.Equal(t, int64(9), f.Until)
	assert.Equal(t, 3, f.Limit)
}

func TestFilter_UnmarshalJSON_IgnoresUnknownKeys(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"search":"x","kinds":[1]}`), &f))
	assert.Equal(t, []int{1}, f.Kinds)
}

func TestFilter_Matches(t *testing.T) {
	ev := &Event{
		ID:        "aa",
		PubKey:    "pk",
		CreatedAt: 150,
		Kind:      KindComment,
		Tags:      Tags{{"a", "30023:pk:post"}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches everything", Filter{}, true},
		{"matching kind", Filter{Kinds: []int{KindComment}}, true},
		{"wrong kind", Filter{Kinds: []int{KindNote}}, false},
		{"matching author", Filter{Authors: []string{"pk", "other"}}, true},
		{"wrong author", Filter{Authors: []string{"other"}}, false},
		{"matching id", Filter{IDs: []string{"aa"}}, true},
		{"wrong id", Filter{IDs: []string{"bb"}}, false},
		{"since inclusive", Filter{Since: 150}, true},
		{"since excludes older", Filter{Since: 151}, false},
		{"until inclusive", Filter{Until: 150}, true},
		{"until excludes newer", Filter{Until: 149}, false},
		{"matching tag", Filter{Tags: map[string][]string{"a": {"30023:pk:post"}}}, true},
		{"wrong tag value", Filter{Tags: map[string][]string{"a": {"30023:pk:other"}}}, false},
		{"missing tag name", Filter{Tags: map[string][]string{"e": {"aa"}}}, false},
		{"conjunction fails on one dimension", Filter{Kinds: []int{KindComment}, Authors: []string{"other"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestFilter_Matches_NilEvent(t *testing.T) {
	assert.False(t, Filter{}.Matches(nil))
}

func TestSortByCreatedAt(t *testing.T) {
	a := &Event{ID: "cc", CreatedAt: 10}
	b := &Event{ID: "aa", CreatedAt: 30}
	c := &Event{ID: "bb", CreatedAt: 30}

	events := []*Event{a, c, b}
	SortByCreatedAt(events)

	assert.Equal(t, []*Event{b, c, a}, events)
}

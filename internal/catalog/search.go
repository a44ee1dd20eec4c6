package catalog

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortLanguage drives the collation of distinct values.
var SortLanguage = language.Spanish

// SearchDashboards returns the dashboards whose JSON form contains query,
// ignoring case. A blank query returns the whole collection.
func (s *Store) SearchDashboards(query string) []Dashboard {
	return search(s.dashboards.Load(), query)
}

// SearchQueries is SearchDashboards for saved queries.
func (s *Store) SearchQueries(query string) []Query {
	return search(s.queries.Load(), query)
}

func search[T any](snap *Snapshot[T], query string) []T {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return snap.Records
	}
	out := make([]T, 0)
	for i, hay := range snap.haystack {
		if strings.Contains(hay, needle) {
			out = append(out, snap.Records[i])
		}
	}
	return out
}

// DistinctDashboardValues returns the distinct non-empty values of field in
// locale-aware order. List fields (channels, sources) contribute each entry.
func (s *Store) DistinctDashboardValues(field Field) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	for _, d := range s.dashboards.Load().Records {
		switch field {
		case FieldChannels:
			for _, v := range d.ChannelList() {
				add(v)
			}
		case FieldSources:
			for _, v := range d.SourceList() {
				add(v)
			}
		default:
			add(strings.TrimSpace(d.Value(field)))
		}
	}
	// Collators keep scratch buffers, so one per call.
	collate.New(SortLanguage).SortStrings(values)
	return values
}

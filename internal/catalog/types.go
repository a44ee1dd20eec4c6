// Package catalog holds the canonical dashboard and query records, the
// normalizer mapping loosely named CSV columns onto them, and the in-memory
// store serving read queries over the latest loaded snapshot.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind names one of the two catalogs.
type Kind string

const (
	// KindDashboards is the dashboards catalog.
	KindDashboards Kind = "dashboards"
	// KindQueries is the saved queries catalog.
	KindQueries Kind = "queries"
)

// Kinds lists every collection kind in load order.
var Kinds = []Kind{KindDashboards, KindQueries}

// ErrUnknownKind is returned for collection kinds the store does not know.
var ErrUnknownKind = errors.New("catalog: unknown collection kind")

// ParseKind converts s into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDashboards:
		return KindDashboards, nil
	case KindQueries:
		return KindQueries, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Field names a dashboard attribute that can be enumerated for filter UIs.
type Field string

const (
	FieldManagingGroup Field = "gerencia"
	FieldDeveloper     Field = "desarrollador"
	FieldStatus        Field = "estado"
	// FieldChannels and FieldSources enumerate the individual list entries.
	FieldChannels Field = "canales"
	FieldSources  Field = "fuentes"
)

// Dashboard is the canonical dashboard record.
//
// Channels and Sources hold raw pipe-delimited lists, Owners and Contacts raw
// semicolon-delimited lists; they are split on demand by the list accessors.
// Raw retains every column of the source row under its original header.
type Dashboard struct {
	ID            string
	Title         string
	ManagingGroup string
	Developer     string
	Status        string
	Channels      string
	Sources       string
	Owners        string
	Contacts      string
	LinkURL       string
	ThumbnailURL  string
	LastUpdated   string
	Raw           map[string]string
}

// canonical returns the JSON keys and values of the normalized fields.
func (d Dashboard) canonical() [][2]string {
	return [][2]string{
		{"id", d.ID},
		{"titulo", d.Title},
		{"gerencia", d.ManagingGroup},
		{"desarrollador", d.Developer},
		{"estado", d.Status},
		{"canales", d.Channels},
		{"fuentes", d.Sources},
		{"responsables", d.Owners},
		{"contactos", d.Contacts},
		{"link_dashboard", d.LinkURL},
		{"thumb_url", d.ThumbnailURL},
		{"ultima_actualizacion", d.LastUpdated},
	}
}

// Value returns the value of an enumerable field.
func (d Dashboard) Value(f Field) string {
	switch f {
	case FieldManagingGroup:
		return d.ManagingGroup
	case FieldDeveloper:
		return d.Developer
	case FieldStatus:
		return d.Status
	case FieldChannels:
		return d.Channels
	case FieldSources:
		return d.Sources
	default:
		return ""
	}
}

// ChannelList splits Channels on "|".
func (d Dashboard) ChannelList() []string { return SplitList(d.Channels, "|") }

// SourceList splits Sources on "|".
func (d Dashboard) SourceList() []string { return SplitList(d.Sources, "|") }

// OwnerList splits Owners on ";".
func (d Dashboard) OwnerList() []string { return SplitList(d.Owners, ";") }

// ContactList splits Contacts on ";".
func (d Dashboard) ContactList() []string { return SplitList(d.Contacts, ";") }

// MarshalJSON flattens Raw into the object; canonical keys win over raw
// columns with the same name.
func (d Dashboard) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(d.Raw)+12)
	for k, v := range d.Raw {
		out[k] = v
	}
	for _, kv := range d.canonical() {
		out[kv[0]] = kv[1]
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened form produced by MarshalJSON. Keys that
// are not canonical land in Raw.
func (d *Dashboard) UnmarshalJSON(b []byte) error {
	var in map[string]string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*d = Dashboard{
		ID:            in["id"],
		Title:         in["titulo"],
		ManagingGroup: in["gerencia"],
		Developer:     in["desarrollador"],
		Status:        in["estado"],
		Channels:      in["canales"],
		Sources:       in["fuentes"],
		Owners:        in["responsables"],
		Contacts:      in["contactos"],
		LinkURL:       in["link_dashboard"],
		ThumbnailURL:  in["thumb_url"],
		LastUpdated:   in["ultima_actualizacion"],
	}
	for _, kv := range d.canonical() {
		delete(in, kv[0])
	}
	if len(in) > 0 {
		d.Raw = in
	}
	return nil
}

// Query is the canonical saved query record.
type Query struct {
	ID   string   `json:"id"`
	Name string   `json:"nombre"`
	Tags []string `json:"tags"`
	SQL  string   `json:"sql"`
}

// MarshalJSON keeps tags an array even when empty.
func (q Query) MarshalJSON() ([]byte, error) {
	type plain Query
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return json.Marshal(plain(q))
}

// SplitList splits s on sep, trims every piece and drops blanks. Order and
// duplicates are preserved.
func SplitList(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

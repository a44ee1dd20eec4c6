package catalog

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Row is one raw CSV row keyed by header name.
type Row map[string]string

// Aliases is an ordered list of candidate column names for one canonical
// field. Append to extend; callers never change.
type Aliases []string

// Resolve returns the first non-empty value among the aliases. Each alias is
// tried as an exact header first and then folded (case, accents, spacing and
// underscores ignored), so "Última Actualización" also matches
// "ultima_actualizacion".
func (a Aliases) Resolve(r Row) string {
	if len(r) == 0 {
		return ""
	}
	var folded map[string]string
	for _, name := range a {
		if v := strings.TrimSpace(r[name]); v != "" {
			return v
		}
		if folded == nil {
			folded = r.folded()
		}
		if v := folded[foldKey(name)]; v != "" {
			return v
		}
	}
	return ""
}

// folded indexes non-empty values by folded header. When two headers fold
// alike the one sorting first wins, so a file always normalizes the same way;
// exact matches are preferred by Resolve anyway.
func (r Row) folded() map[string]string {
	out := make(map[string]string, len(r))
	for _, k := range slices.Sorted(maps.Keys(r)) {
		v := strings.TrimSpace(r[k])
		if v == "" {
			continue
		}
		fk := foldKey(k)
		if _, ok := out[fk]; !ok {
			out[fk] = v
		}
	}
	return out
}

func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ToLower(stripped)
	stripped = strings.NewReplacer("_", " ", "-", " ").Replace(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// DashboardAliases lists the candidate columns of every dashboard field.
type DashboardAliases struct {
	ID            Aliases
	Title         Aliases
	ManagingGroup Aliases
	Developer     Aliases
	Status        Aliases
	Channels      Aliases
	Sources       Aliases
	Owners        Aliases
	Contacts      Aliases
	LinkURL       Aliases
	ThumbnailURL  Aliases
	LastUpdated   Aliases
}

// QueryAliases lists the candidate columns of every query field.
type QueryAliases struct {
	ID   Aliases
	Name Aliases
	Tags Aliases
	SQL  Aliases
}

// DefaultDashboardAliases matches the exports seen so far (Spanish and
// English headers, with and without accents).
var DefaultDashboardAliases = DashboardAliases{
	ID:            Aliases{"id", "ID", "dashboard_id", "Dashboard", "Nombre", "Título"},
	Title:         Aliases{"Nombre Dashboard", "Nombre", "titulo", "Título", "Dashboard"},
	ManagingGroup: Aliases{"Gerencia", "gerencia"},
	Developer:     Aliases{"Desarrollador", "desarrollador"},
	Status:        Aliases{"Estado Publicacion", "Estado", "estado"},
	Channels:      Aliases{"Canales", "canales", "Tipo_conexion", "Tipo conexion"},
	Sources:       Aliases{"Fuentes", "fuentes", "Origen_datos", "Origen datos"},
	Owners:        Aliases{"Responsables", "responsables", "Owner"},
	Contacts:      Aliases{"Contactos", "contactos", "Contacto", "Contacts"},
	LinkURL:       Aliases{"Url_Dashboard", "URL", "Link Dashboard", "link_dashboard", "link"},
	ThumbnailURL:  Aliases{"thumb_url", "Thumb", "Imagen"},
	LastUpdated:   Aliases{"ultima_actualizacion", "Última Actualización", "Ultima Actualizacion"},
}

// DefaultQueryAliases matches the queries export.
var DefaultQueryAliases = QueryAliases{
	ID:   Aliases{"id", "ID"},
	Name: Aliases{"Nombre", "nombre", "Name"},
	Tags: Aliases{"Tags", "tags", "Etiquetas"},
	SQL:  Aliases{"SQL", "sql", "Query", "Consulta"},
}

// Normalizer converts raw rows into canonical records. The zero value is not
// usable; construct with NewNormalizer.
type Normalizer struct {
	Dashboards DashboardAliases
	Queries    QueryAliases
	// NewID returns a fresh dashboard id for rows without one.
	NewID func() string
}

// NewNormalizer returns a Normalizer with the default alias tables.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Dashboards: DefaultDashboardAliases,
		Queries:    DefaultQueryAliases,
		NewID:      NewDashboardID,
	}
}

// NewDashboardID returns "dash-" followed by 32 random hex characters.
func NewDashboardID() string {
	return "dash-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Dashboard normalizes one dashboard row. It never fails: missing columns
// become empty strings and a missing id is generated.
func (n *Normalizer) Dashboard(row Row) Dashboard {
	a := n.Dashboards
	d := Dashboard{
		ID:            a.ID.Resolve(row),
		Title:         a.Title.Resolve(row),
		ManagingGroup: a.ManagingGroup.Resolve(row),
		Developer:     a.Developer.Resolve(row),
		Status:        a.Status.Resolve(row),
		Channels:      a.Channels.Resolve(row),
		Sources:       a.Sources.Resolve(row),
		Owners:        a.Owners.Resolve(row),
		Contacts:      a.Contacts.Resolve(row),
		LinkURL:       a.LinkURL.Resolve(row),
		ThumbnailURL:  a.ThumbnailURL.Resolve(row),
		LastUpdated:   a.LastUpdated.Resolve(row),
		Raw:           make(map[string]string, len(row)),
	}
	for k, v := range row {
		d.Raw[k] = strings.TrimSpace(v)
	}
	if d.ID == "" {
		d.ID = n.NewID()
	}
	if d.Title == "" {
		d.Title = d.ID
	}
	return d
}

// Query normalizes one query row; position is the 1-based data row index.
func (n *Normalizer) Query(row Row, position int) Query {
	a := n.Queries
	q := Query{
		ID:   a.ID.Resolve(row),
		Name: a.Name.Resolve(row),
		Tags: SplitList(a.Tags.Resolve(row), "|"),
		SQL:  a.SQL.Resolve(row),
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q-%d", position)
	}
	if q.Name == "" {
		q.Name = fmt.Sprintf("Query %d", position)
	}
	return q
}

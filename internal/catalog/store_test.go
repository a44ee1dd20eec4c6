package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"catalogbrowser/internal/blob"
)

const dashboardsCSV = "id;Nombre Dashboard;Gerencia;Desarrollador;Estado;Canales\n" +
	"d1;Sales Overview;Finance;Ana;Publicado;Web|Mobile\n" +
	"d2;Churn;Marketing;Luis;Borrador;Web\n" +
	"d3;Ópera;Finance;Álvaro;Publicado;\n"

const queriesCSV = "Nombre;Tags;SQL\n" +
	"Top Customers;sales|q4;select * from customers\n" +
	"Stock;inventory;select * from stock\n"

type recordedReload struct {
	kind    string
	ok      bool
	records int
}

type fakeObserver struct {
	mu      sync.Mutex
	reloads []recordedReload
}

func (f *fakeObserver) ObserveReload(kind string, ok bool, records int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, recordedReload{kind, ok, records})
}

func newMemoryStore(t *testing.T, opts ...Option) (*Store, *blob.Memory) {
	t.Helper()
	mem := blob.NewMemory()
	locs, err := blob.OpenFiles(context.Background(), blob.Options{Driver: blob.DriverMemory, Memory: mem}, "data/dashboards.csv", "data/queries.csv")
	require.NoError(t, err)
	store := NewStore(map[Kind]blob.Location{KindDashboards: locs[0], KindQueries: locs[1]}, opts...)
	return store, mem
}

func TestStoreStartsEmpty(t *testing.T) {
	store, _ := newMemoryStore(t)
	assert.Empty(t, store.Dashboards())
	assert.NotNil(t, store.Dashboards())
	assert.Empty(t, store.Queries())
	assert.Empty(t, store.SearchDashboards("x"))
	assert.Empty(t, store.DistinctDashboardValues(FieldStatus))
}

func TestStoreReloadAndQuery(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	mem.PutString("data/queries.csv", queriesCSV)
	require.NoError(t, store.ReloadAll(context.Background()))

	dashboards := store.Dashboards()
	require.Len(t, dashboards, 3)
	assert.Equal(t, []string{"d1", "d2", "d3"}, []string{dashboards[0].ID, dashboards[1].ID, dashboards[2].ID})
	assert.Equal(t, 3, store.Count(KindDashboards))
	assert.Equal(t, 2, store.Count(KindQueries))

	d, ok := store.Dashboard("d2")
	require.True(t, ok)
	assert.Equal(t, "Churn", d.Title)
	_, ok = store.Dashboard("D2")
	assert.False(t, ok, "lookup is exact")
	_, ok = store.Dashboard("does-not-exist")
	assert.False(t, ok)

	queries := store.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, Query{ID: "q-1", Name: "Top Customers", Tags: []string{"sales", "q4"}, SQL: "select * from customers"}, queries[0])

	snap := store.DashboardSnapshot()
	assert.True(t, snap.Present)
	assert.NotEmpty(t, snap.Source.ETag)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestStoreSearch(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	mem.PutString("data/queries.csv", queriesCSV)
	require.NoError(t, store.ReloadAll(context.Background()))

	hits := store.SearchDashboards("BORRA")
	require.Len(t, hits, 1, "status fragment matches case-insensitively")
	assert.Equal(t, "d2", hits[0].ID)

	hits = store.SearchDashboards("mobile")
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].ID)

	hits = store.SearchDashboards("ópera")
	require.Len(t, hits, 1, "non-ascii text is searchable")

	assert.Len(t, store.SearchDashboards("   "), 3)
	assert.Empty(t, store.SearchDashboards("nothing matches this"))

	q := store.SearchQueries("INVENTORY")
	require.Len(t, q, 1)
	assert.Equal(t, "Stock", q[0].Name)
	assert.Len(t, store.SearchQueries(""), 2)
}

func TestStoreSearchMatchesRawColumns(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", "id;Comentario Interno\nd1;revisar con auditoria\n")
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	hits := store.SearchDashboards("Auditoria")
	require.Len(t, hits, 1)
	assert.Equal(t, "revisar con auditoria", hits[0].Raw["Comentario Interno"])
}

func TestStoreDistinctValues(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	require.NoError(t, store.Reload(context.Background(), KindDashboards))

	assert.Equal(t, []string{"Finance", "Marketing"}, store.DistinctDashboardValues(FieldManagingGroup))
	assert.Equal(t, []string{"Álvaro", "Ana", "Luis"}, store.DistinctDashboardValues(FieldDeveloper))
	assert.Equal(t, []string{"Borrador", "Publicado"}, store.DistinctDashboardValues(FieldStatus))
	assert.Equal(t, []string{"Mobile", "Web"}, store.DistinctDashboardValues(FieldChannels))
	assert.Empty(t, store.DistinctDashboardValues(Field("unknown")))
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	obs := &fakeObserver{}
	store, mem := newMemoryStore(t, WithObserver(obs))
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	require.Equal(t, 3, store.Count(KindDashboards))

	mem.Remove("data/dashboards.csv")
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	assert.Empty(t, store.Dashboards())
	assert.False(t, store.DashboardSnapshot().Present)
	assert.False(t, store.Present(context.Background(), KindDashboards))
	assert.Equal(t, []recordedReload{{"dashboards", true, 3}, {"dashboards", true, 0}}, obs.reloads)
}

func TestStoreMalformedReloadKeepsSnapshot(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs := &fakeObserver{}
	store, mem := newMemoryStore(t, WithLogger(zap.New(core)), WithObserver(obs))
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	before := store.DashboardSnapshot()

	mem.PutString("data/dashboards.csv", "id;Nombre\nd9;a;b;c\n")
	err := store.Reload(context.Background(), KindDashboards)
	require.ErrorIs(t, err, ErrMalformed)

	assert.Same(t, before, store.DashboardSnapshot())
	assert.Len(t, store.Dashboards(), 3)
	_, ok := store.Dashboard("d1")
	assert.True(t, ok)

	failures := logs.FilterMessage("catalog reload failed; keeping previous snapshot").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "dashboards", failures[0].ContextMap()["kind"])
	assert.Equal(t, recordedReload{"dashboards", false, 0}, obs.reloads[len(obs.reloads)-1])
}

func TestStoreMalformedFirstLoadStaysEmpty(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/queries.csv", "Nombre;Tags\nA;b;c\n")
	require.Error(t, store.ReloadAll(context.Background()))
	assert.Empty(t, store.Queries())
}

func TestStoreReloadIsRepeatable(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", "id;Nombre Dashboard;Gerencia\nd1;A;F\n;B;G\n")
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	first := store.Dashboards()
	require.NoError(t, store.Reload(context.Background(), KindDashboards))
	second := store.Dashboards()

	require.Len(t, second, len(first))
	assert.Equal(t, first[0], second[0])
	// id-less rows get a fresh id per load, everything else is equal
	assert.NotEqual(t, first[1].ID, second[1].ID)
	assert.Equal(t, "B", second[1].Title)
	assert.Equal(t, first[1].ManagingGroup, second[1].ManagingGroup)
}

func TestStoreDuplicateIDsAreReplaced(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store, mem := newMemoryStore(t, WithLogger(zap.New(core)))
	mem.PutString("data/dashboards.csv", "id;Nombre Dashboard\nd1;First\nd1;Second\n")
	require.NoError(t, store.Reload(context.Background(), KindDashboards))

	dashboards := store.Dashboards()
	require.Len(t, dashboards, 2)
	assert.Equal(t, "d1", dashboards[0].ID)
	assert.Regexp(t, generatedID, dashboards[1].ID)
	assert.Equal(t, "Second", dashboards[1].Title)
	d, ok := store.Dashboard("d1")
	require.True(t, ok)
	assert.Equal(t, "First", d.Title)
	assert.Equal(t, 1, logs.FilterMessage("duplicate dashboard id replaced").Len())
}

func TestStoreUnknownKind(t *testing.T) {
	store, _ := newMemoryStore(t)
	assert.ErrorIs(t, store.Reload(context.Background(), Kind("reports")), ErrUnknownKind)
	assert.Equal(t, 0, store.Count(Kind("reports")))
}

func TestStoreUnconfiguredKindIsEmpty(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.ReloadAll(context.Background()))
	assert.Empty(t, store.Dashboards())
	assert.False(t, store.Present(context.Background(), KindQueries))
}

func TestStoreConcurrentReadersDuringReload(t *testing.T) {
	store, mem := newMemoryStore(t)
	mem.PutString("data/dashboards.csv", dashboardsCSV)
	require.NoError(t, store.Reload(context.Background(), KindDashboards))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := len(store.SearchDashboards(""))
				if n != 3 && n != 1 {
					t.Errorf("torn snapshot with %d records", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			mem.PutString("data/dashboards.csv", "id\nonly\n")
		} else {
			mem.PutString("data/dashboards.csv", dashboardsCSV)
		}
		require.NoError(t, store.Reload(context.Background(), KindDashboards))
	}
	close(stop)
	wg.Wait()
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Dashboards ")
	require.NoError(t, err)
	assert.Equal(t, KindDashboards, k)
	_, err = ParseKind("reports")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

package csvfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/models"
)

func newTestStore(t *testing.T) *DatasetStorage {
	t.Helper()
	store, err := NewDatasetStorage(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return store
}

func sampleRecords() []models.Record {
	return []models.Record{
		{
			Make: "Ferrari", Model: "250 GT", ProductionYear: "1962",
			DateOfSale: "15/07/2024", SoldPrice: "£2,500,000",
			Gearbox: models.GearboxManual, Description: "matching numbers example",
			AuctionHouse: "Bonhams", CountryOfSale: "United Kingdom",
		},
		{
			Make: "Porsche", Model: "550", ProductionYear: "1955",
			DateOfSale: "01/03/2024", SoldPrice: "£3,000,000",
			Spyder: true, LHDRHD: "LHD",
		},
	}
}

func TestHistoryMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)

	history, err := store.History(models.SourceClassicValuer)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendAndHistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)

	name, err := store.Append(models.SourceClassicValuer, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, "classic_valuer_results.csv", name)

	history, err := store.History(models.SourceClassicValuer)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Ferrari", history[0].Make)
	assert.Equal(t, "£2,500,000", history[0].SoldPrice)
	assert.Equal(t, "15/07/2024", history[0].DateOfSale)
	assert.True(t, history[1].Spyder)
	assert.Equal(t, "LHD", history[1].LHDRHD)
}

func TestAppendAccumulates(t *testing.T) {
	store := newTestStore(t)
	records := sampleRecords()

	_, err := store.Append(models.SourceClassicValuer, records[:1])
	require.NoError(t, err)
	_, err = store.Append(models.SourceClassicValuer, records[1:])
	require.NoError(t, err)

	history, err := store.History(models.SourceClassicValuer)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Ferrari", history[0].Make)
	assert.Equal(t, "Porsche", history[1].Make)

	// single header row despite two appends
	data, err := os.ReadFile(filepath.Join(store.dir, "classic_valuer_results.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "make,model,production_year"))
}

func TestAppendEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	name, err := store.Append(models.SourceClassicCom, nil)
	require.NoError(t, err)
	assert.Equal(t, "classic_com_results.csv", name)

	// no file is created for an empty append
	_, err = os.Stat(filepath.Join(store.dir, name))
	assert.True(t, os.IsNotExist(err))
}

func TestSourcesKeptSeparate(t *testing.T) {
	store := newTestStore(t)
	records := sampleRecords()

	_, err := store.Append(models.SourceClassicValuer, records[:1])
	require.NoError(t, err)
	_, err = store.Append(models.SourceClassicCom, records[1:])
	require.NoError(t, err)

	valuer, err := store.History(models.SourceClassicValuer)
	require.NoError(t, err)
	require.Len(t, valuer, 1)
	assert.Equal(t, "Ferrari", valuer[0].Make)

	classicCom, err := store.History(models.SourceClassicCom)
	require.NoError(t, err)
	require.Len(t, classicCom, 1)
	assert.Equal(t, "Porsche", classicCom[0].Make)
}

func TestPath(t *testing.T) {
	store := newTestStore(t)

	name, err := store.Append(models.SourceClassicValuer, sampleRecords())
	require.NoError(t, err)

	path, err := store.Path(name)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = store.Path("missing.csv")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.Path("../escape.csv")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.Path("")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistoryPreservesCommasAndQuotes(t *testing.T) {
	store := newTestStore(t)

	records := []models.Record{{
		Make:        "Jaguar",
		Model:       "E-Type",
		Description: `sold with "matching numbers", extensive history file`,
		SoldPrice:   "£150,000",
	}}
	_, err := store.Append(models.SourceClassicValuer, records)
	require.NoError(t, err)

	history, err := store.History(models.SourceClassicValuer)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, records[0].Description, history[0].Description)
}

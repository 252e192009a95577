package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/models"
)

func newTestRegistry() *Registry {
	return NewRegistry(arbor.NewLogger())
}

func TestRegistryCreate(t *testing.T) {
	registry := newTestRegistry()

	job, err := registry.Create(models.SourceClassicValuer, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, models.SourceClassicValuer, job.Source)

	// defaults applied
	assert.Equal(t, 3, models.OptionInt(job.Options, "max_pages", -1))
	assert.True(t, models.OptionBool(job.Options, "headless", false))
}

func TestRegistryCreateMergesOverrides(t *testing.T) {
	registry := newTestRegistry()

	job, err := registry.Create(models.SourceClassicValuer, map[string]interface{}{
		"max_pages": 5,
		"custom":    "value",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, models.OptionInt(job.Options, "max_pages", -1))
	assert.Equal(t, "value", job.Options["custom"])
	assert.Equal(t, 3000, models.OptionInt(job.Options, "delay_ms", -1))
}

func TestRegistryCreateInvalidSource(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Create("ebay", nil)
	assert.ErrorIs(t, err, models.ErrInvalidSource)
	assert.Equal(t, 0, registry.Count())
}

func TestRegistryGet(t *testing.T) {
	registry := newTestRegistry()

	created, err := registry.Create(models.SourceClassicCom, nil)
	require.NoError(t, err)

	got, err := registry.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = registry.Get("job_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistryGetReturnsClone(t *testing.T) {
	registry := newTestRegistry()

	created, err := registry.Create(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	got, err := registry.Get(created.ID)
	require.NoError(t, err)
	got.Status = models.JobStatusFailed
	got.Options["max_pages"] = 99

	fresh, err := registry.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, fresh.Status)
	assert.Equal(t, 3, models.OptionInt(fresh.Options, "max_pages", -1))
}

func TestRegistryListCreationOrder(t *testing.T) {
	registry := newTestRegistry()

	first, _ := registry.Create(models.SourceClassicValuer, nil)
	second, _ := registry.Create(models.SourceClassicCom, nil)
	third, _ := registry.Create(models.SourceClassicValuer, nil)

	jobs := registry.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
	assert.Equal(t, third.ID, jobs[2].ID)
}

func TestRegistryUpdate(t *testing.T) {
	registry := newTestRegistry()
	created, _ := registry.Create(models.SourceClassicValuer, nil)

	updated, err := registry.Update(created.ID, func(j *models.Job) {
		j.MarkStarted()
		j.Progress = 30
		j.Message = "Fetching page 1..."
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, updated.Status)
	assert.Equal(t, 30, updated.Progress)

	_, err = registry.Update("job_missing", func(j *models.Job) {})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistryUpdateTerminalFreeze(t *testing.T) {
	registry := newTestRegistry()
	created, _ := registry.Create(models.SourceClassicValuer, nil)

	_, err := registry.Update(created.ID, func(j *models.Job) {
		j.MarkCompleted("done")
	})
	require.NoError(t, err)

	frozen, err := registry.Update(created.ID, func(j *models.Job) {
		j.Status = models.JobStatusRunning
		j.Progress = 10
		j.Message = "should not apply"
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, frozen.Status)
	assert.Equal(t, 100, frozen.Progress)
	assert.Equal(t, "done", frozen.Message)
}

func TestRegistryUpdateProgressNeverDecreases(t *testing.T) {
	registry := newTestRegistry()
	created, _ := registry.Create(models.SourceClassicValuer, nil)

	registry.Update(created.ID, func(j *models.Job) { j.Progress = 60 })

	updated, err := registry.Update(created.ID, func(j *models.Job) { j.Progress = 30 })
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Progress)

	updated, err = registry.Update(created.ID, func(j *models.Job) { j.Progress = 150 })
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
}

func TestRegistryDelete(t *testing.T) {
	registry := newTestRegistry()
	created, _ := registry.Create(models.SourceClassicValuer, nil)

	require.NoError(t, registry.Delete(created.ID))
	_, err := registry.Get(created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, registry.List())

	assert.ErrorIs(t, registry.Delete(created.ID), models.ErrNotFound)
}

func TestRegistryFailureKeepsProgress(t *testing.T) {
	registry := newTestRegistry()
	created, _ := registry.Create(models.SourceClassicValuer, nil)

	registry.Update(created.ID, func(j *models.Job) {
		j.MarkStarted()
		j.Progress = 40
	})
	failed, err := registry.Update(created.ID, func(j *models.Job) {
		j.MarkFailed("Scraping failed: browser crashed")
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, 40, failed.Progress)
	require.NotNil(t, failed.CompletedAt)
}

func TestRegistryNotify(t *testing.T) {
	registry := newTestRegistry()

	var fired int
	registry.SetNotify(func() { fired++ })

	created, err := registry.Create(models.SourceClassicValuer, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	_, err = registry.Update(created.ID, func(j *models.Job) { j.Progress = 10 })
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	require.NoError(t, registry.Delete(created.ID))
	assert.Equal(t, 3, fired)

	// failed mutations do not notify
	_, err = registry.Update(created.ID, func(j *models.Job) {})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 3, fired)
}

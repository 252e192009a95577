package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/models"
)

// DatasetStorage is the append-only accumulated dataset, one CSV file per
// source under a single directory. The file is the deduplication
// baseline: rows are appended in acceptance order and never rewritten.
type DatasetStorage struct {
	dir    string
	logger arbor.ILogger

	mu    sync.Mutex
	locks map[models.SourceType]*sync.Mutex
}

var _ interfaces.DatasetStore = (*DatasetStorage)(nil)

// NewDatasetStorage creates the dataset directory if needed
func NewDatasetStorage(dir string, logger arbor.ILogger) (*DatasetStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	return &DatasetStorage{
		dir:    dir,
		logger: logger,
		locks:  make(map[models.SourceType]*sync.Mutex),
	}, nil
}

func datasetFileName(source models.SourceType) string {
	return fmt.Sprintf("%s_results.csv", source)
}

func (s *DatasetStorage) filePath(source models.SourceType) string {
	return filepath.Join(s.dir, datasetFileName(source))
}

func (s *DatasetStorage) sourceLock(source models.SourceType) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[source]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[source] = lock
	}
	return lock
}

// History reads the full accumulated dataset for a source. A missing
// file is an empty history, not an error.
func (s *DatasetStorage) History(source models.SourceType) ([]models.Record, error) {
	lock := s.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	return s.readAll(source)
}

func (s *DatasetStorage) readAll(source models.SourceType) ([]models.Record, error) {
	path := s.filePath(source)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistError{Path: path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate rows written before new columns existed

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &models.PersistError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// skip the header row
	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, models.RecordFromCSVRow(row))
	}
	return records, nil
}

// Append writes accepted records to the end of the source's dataset,
// creating the file with a header row on first write. Returns the
// dataset file name as the job's output reference. Appending zero
// records still resolves the reference without touching the file.
func (s *DatasetStorage) Append(source models.SourceType, records []models.Record) (string, error) {
	lock := s.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	name := datasetFileName(source)
	if len(records) == 0 {
		return name, nil
	}

	path := s.filePath(source)
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", &models.PersistError{Path: path, Err: err}
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if writeHeader {
		if err := writer.Write(models.CSVHeader); err != nil {
			return "", &models.PersistError{Path: path, Err: err}
		}
	}
	for i := range records {
		if err := writer.Write(records[i].CSVRow()); err != nil {
			return "", &models.PersistError{Path: path, Err: err}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", &models.PersistError{Path: path, Err: err}
	}

	s.logger.Info().
		Str("source", string(source)).
		Str("file", name).
		Int("records", len(records)).
		Msg("Appended records to dataset")

	return name, nil
}

// Path resolves an output reference to a readable file path, rejecting
// anything that escapes the dataset directory.
func (s *DatasetStorage) Path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", models.ErrNotFound
	}

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", models.ErrNotFound
	}
	return path, nil
}

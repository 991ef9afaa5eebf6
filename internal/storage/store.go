package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/deformsim/internal/sim"
	"github.com/san-kum/deformsim/internal/solver"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Frames     int                `json:"frames"`
	Dt         float64            `json:"dt"`
	Threaded   bool               `json:"threaded"`
	Policy     string             `json:"policy"`
	Substeps   int                `json:"substeps"`
	Iterations int                `json:"iterations"`
	Proxies    int                `json:"proxies"`
	Elapsed    float64            `json:"elapsed_seconds"`
	Deferred   uint64             `json:"deferred_ticks"`
	Discarded  uint64             `json:"discarded_packages"`
	Overflowed uint64             `json:"overflowed_packages"`
	Metrics    map[string]float64 `json:"metrics"`
}

var frameHeader = []string{"frame", "time", "solver_frame", "applied_frame", "staleness", "sag", "proxies"}

// Save writes meta and the per-frame samples of result under a new run ID.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%d", meta.Name, now.UnixNano())
	meta.Timestamp = now
	meta.Frames = len(result.Samples)
	meta.Metrics = result.Metrics
	meta.Elapsed = result.Elapsed.Seconds()
	meta.Proxies = result.Solver.Proxies
	meta.Deferred = result.Ticks.Deferred
	meta.Discarded = result.Ticks.Discarded
	meta.Overflowed = result.Solver.Overflowed

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "frames.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(frameHeader); err != nil {
		return "", err
	}
	for _, smp := range result.Samples {
		row := []string{
			strconv.Itoa(smp.Frame),
			strconv.FormatFloat(smp.Time, 'f', 6, 64),
			strconv.FormatUint(uint64(smp.Solver), 10),
			strconv.FormatUint(uint64(smp.Applied), 10),
			strconv.FormatUint(smp.Staleness, 10),
			strconv.FormatFloat(smp.Sag, 'f', 6, 64),
			strconv.Itoa(smp.Proxies),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every archived run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadFrames reads the per-frame samples of a run. Malformed rows are
// skipped.
func (s *Store) LoadFrames(runID string) ([]sim.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "frames.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(frameHeader) {
			continue
		}
		smp, err := parseSample(rec)
		if err != nil {
			continue
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

func parseSample(rec []string) (sim.Sample, error) {
	var (
		smp sim.Sample
		err error
		u   uint64
	)
	if smp.Frame, err = strconv.Atoi(rec[0]); err != nil {
		return smp, err
	}
	if smp.Time, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return smp, err
	}
	if u, err = strconv.ParseUint(rec[2], 10, 64); err != nil {
		return smp, err
	}
	smp.Solver = solver.Frame(u)
	if u, err = strconv.ParseUint(rec[3], 10, 64); err != nil {
		return smp, err
	}
	smp.Applied = solver.Frame(u)
	if smp.Staleness, err = strconv.ParseUint(rec[4], 10, 64); err != nil {
		return smp, err
	}
	if smp.Sag, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return smp, err
	}
	if smp.Proxies, err = strconv.Atoi(rec[6]); err != nil {
		return smp, err
	}
	return smp, nil
}

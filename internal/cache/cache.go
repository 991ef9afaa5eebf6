// Package cache records every applied output package of a run into a SQLite
// database so it can be listed and replayed later.
// Uses the pure-Go modernc.org/sqlite driver.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/solver"
)

var (
	ErrRunNotFound = errors.New("cache: run not found")
	ErrLossyPolicy = errors.New("cache: recording requires the lossless output policy")
)

type Cache struct {
	db *sql.DB
}

type RunInfo struct {
	ID        int64
	Name      string
	Policy    string
	Threaded  bool
	Frames    int
	CreatedAt time.Time
}

// FrameRecord summarizes one recorded package.
type FrameRecord struct {
	Seq       int
	Frame     solver.Frame
	AppliedOn solver.Frame
	Proxies   int
}

// Buffer is one proxy's recorded output.
type Buffer struct {
	Proxy     solver.ProxyID
	Kind      solver.Kind
	Positions []geom.Vec3
	Strain    float64
}

// Open creates or opens the cache database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Cache, error) {
	if path != "" && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cache: cannot expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: cannot create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: cannot connect to database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migration failed: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			policy TEXT NOT NULL,
			threaded INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS frames (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			frame INTEGER NOT NULL,
			applied_on INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS buffers (
			run_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			proxy_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			positions TEXT NOT NULL,
			strain REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, seq, proxy_id)
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// NewRun starts recording a run under oc. Only lossless runs can be
// recorded; a latest-wins owner drops packages the cache would never see.
func (c *Cache) NewRun(name string, oc owner.Config) (*Recorder, error) {
	if oc.Policy != owner.Lossless {
		return nil, ErrLossyPolicy
	}
	threaded := 0
	if oc.Threaded {
		threaded = 1
	}
	res, err := c.db.Exec(
		"INSERT INTO runs (name, policy, threaded, created_at) VALUES (?, ?, ?, ?)",
		name, oc.Policy.String(), threaded, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("cache: cannot get run ID: %w", err)
	}
	return &Recorder{db: c.db, run: id}, nil
}

func (c *Cache) Runs() ([]RunInfo, error) {
	rows, err := c.db.Query(
		`SELECT r.id, r.name, r.policy, r.threaded, r.created_at, COUNT(f.seq)
		 FROM runs r LEFT JOIN frames f ON f.run_id = r.id
		 GROUP BY r.id
		 ORDER BY r.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			r       RunInfo
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Policy, &r.Threaded, &created, &r.Frames); err != nil {
			return nil, fmt.Errorf("cache: cannot scan run: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: row iteration error: %w", err)
	}
	return runs, nil
}

func (c *Cache) Run(id int64) (*RunInfo, error) {
	var (
		r       RunInfo
		created int64
	)
	err := c.db.QueryRow(
		`SELECT r.id, r.name, r.policy, r.threaded, r.created_at,
		        (SELECT COUNT(*) FROM frames f WHERE f.run_id = r.id)
		 FROM runs r WHERE r.id = ?`,
		id,
	).Scan(&r.ID, &r.Name, &r.Policy, &r.Threaded, &created, &r.Frames)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: cannot query run: %w", err)
	}
	r.CreatedAt = time.Unix(created, 0)
	return &r, nil
}

// Frames lists the recorded packages of a run in apply order.
func (c *Cache) Frames(run int64) ([]FrameRecord, error) {
	if _, err := c.Run(run); err != nil {
		return nil, err
	}
	rows, err := c.db.Query(
		`SELECT f.seq, f.frame, f.applied_on,
		        (SELECT COUNT(*) FROM buffers b WHERE b.run_id = f.run_id AND b.seq = f.seq)
		 FROM frames f WHERE f.run_id = ?
		 ORDER BY f.seq`,
		run,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var f FrameRecord
		if err := rows.Scan(&f.Seq, &f.Frame, &f.AppliedOn, &f.Proxies); err != nil {
			return nil, fmt.Errorf("cache: cannot scan frame: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: row iteration error: %w", err)
	}
	return out, nil
}

// Buffers returns the recorded outputs of one package, ordered by proxy.
func (c *Cache) Buffers(run int64, seq int) ([]Buffer, error) {
	rows, err := c.db.Query(
		`SELECT proxy_id, kind, positions, strain FROM buffers
		 WHERE run_id = ? AND seq = ? ORDER BY proxy_id`,
		run, seq,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot query buffers: %w", err)
	}
	defer rows.Close()

	var out []Buffer
	for rows.Next() {
		var (
			b    Buffer
			kind string
			pos  string
		)
		if err := rows.Scan(&b.Proxy, &kind, &pos, &b.Strain); err != nil {
			return nil, fmt.Errorf("cache: cannot scan buffer: %w", err)
		}
		if b.Kind, err = solver.ParseKind(kind); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pos), &b.Positions); err != nil {
			return nil, fmt.Errorf("cache: corrupt positions: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: row iteration error: %w", err)
	}
	return out, nil
}

func (c *Cache) DeleteRun(run int64) error {
	if _, err := c.Run(run); err != nil {
		return err
	}
	for _, q := range []string{
		"DELETE FROM buffers WHERE run_id = ?",
		"DELETE FROM frames WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := c.db.Exec(q, run); err != nil {
			return fmt.Errorf("cache: cannot delete run: %w", err)
		}
	}
	return nil
}

// Recorder is a FrameObserver writing each applied package to the cache.
// The first write error stops recording and is reported by Err.
type Recorder struct {
	db  *sql.DB
	run int64
	seq int
	err error
}

func (r *Recorder) ID() int64 { return r.run }

func (r *Recorder) Err() error { return r.err }

func (r *Recorder) Recorded() int { return r.seq }

func (r *Recorder) ObserveFrame(current solver.Frame, pkg *solver.OutputPackage) {
	if r.err != nil {
		return
	}
	r.err = r.write(current, pkg)
}

func (r *Recorder) write(current solver.Frame, pkg *solver.OutputPackage) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO frames (run_id, seq, frame, applied_on) VALUES (?, ?, ?, ?)",
		r.run, r.seq, uint64(pkg.Frame), uint64(current),
	); err != nil {
		return fmt.Errorf("cache: cannot record frame: %w", err)
	}

	ids := make([]solver.ProxyID, 0, len(pkg.Buffers))
	for id := range pkg.Buffers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		buf := pkg.Buffers[id]
		pos, err := json.Marshal(buf.Positions())
		if err != nil {
			return fmt.Errorf("cache: encode positions: %w", err)
		}
		var strain float64
		if buf.Kind == solver.KindFlesh && buf.Flesh != nil {
			strain = buf.Flesh.Strain
		}
		if _, err := tx.Exec(
			"INSERT INTO buffers (run_id, seq, proxy_id, kind, positions, strain) VALUES (?, ?, ?, ?, ?, ?)",
			r.run, r.seq, uint64(id), buf.Kind.String(), string(pos), strain,
		); err != nil {
			return fmt.Errorf("cache: cannot record buffer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	r.seq++
	return nil
}

var _ owner.FrameObserver = (*Recorder)(nil)

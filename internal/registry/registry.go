package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/dashdock/dashdock/internal/domain"
	"github.com/dashdock/dashdock/internal/meta"
)

const schema = `
CREATE TABLE IF NOT EXISTS docsets (
    name         TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    path         TEXT NOT NULL,
    installed_at TEXT NOT NULL
);
`

// DocsetSuffix is the directory extension every installed docset uses.
const DocsetSuffix = ".docset"

// SQLite indexes installed docsets. The index row is the authority on
// whether a docset is installed; the per-docset meta.json side file carries
// the acquisition metadata.
type SQLite struct {
	mu  sync.RWMutex
	db  *sql.DB
	fs  afero.Fs
	dir string
}

// Open creates or opens the index at dbPath for the docset directory dir.
// The directory is reconciled against the index on open, so docsets dropped
// in or deleted externally are picked up.
func Open(dbPath, dir string, fsys afero.Fs) (*SQLite, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create docset directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	r := &SQLite{db: db, fs: fsys, dir: dir}
	if err := r.reconcile(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Dir returns the docset install root.
func (r *SQLite) Dir() string {
	return r.dir
}

// Add registers the docset directory at path. Its name is the directory's
// base name without the .docset suffix; title and metadata come from the
// side file when present.
func (r *SQLite) Add(path string) (*domain.InstalledDocset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(path)
}

func (r *SQLite) add(path string) (*domain.InstalledDocset, error) {
	name := strings.TrimSuffix(filepath.Base(path), DocsetSuffix)
	ds := &domain.InstalledDocset{
		Name:        name,
		Title:       name,
		Path:        path,
		InstalledAt: time.Now(),
	}

	if m, err := meta.ReadSideFile(r.fs, path); err == nil {
		ds.Meta = &m
		if m.Title != "" {
			ds.Title = m.Title
		}
	}

	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO docsets (name, title, path, installed_at)
		VALUES (?, ?, ?, ?)`,
		ds.Name, ds.Title, ds.Path, ds.InstalledAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", ds.Name, err)
	}
	return ds, nil
}

// Remove drops the docset from the index. It says nothing about the disk;
// directory cleanup is the caller's problem.
func (r *SQLite) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec("DELETE FROM docsets WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotInstalled
	}
	return nil
}

// Contains reports whether name is installed.
func (r *SQLite) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var one int
	err := r.db.QueryRow("SELECT 1 FROM docsets WHERE name = ?", name).Scan(&one)
	return err == nil
}

// Get returns the installed docset for name, side-file metadata included.
func (r *SQLite) Get(name string) (*domain.InstalledDocset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, err := r.scanRow(r.db.QueryRow(
		"SELECT name, title, path, installed_at FROM docsets WHERE name = ?", name))
	if err != nil {
		return nil, false
	}
	r.loadMeta(ds)
	return ds, true
}

// Docsets lists every installed docset. Side files are read in parallel;
// a missing or corrupt one just leaves Meta nil.
func (r *SQLite) Docsets() ([]*domain.InstalledDocset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query("SELECT name, title, path, installed_at FROM docsets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.InstalledDocset
	for rows.Next() {
		ds, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, ds := range out {
		ds := ds
		g.Go(func() error {
			r.loadMeta(ds)
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLite) scanRow(row rowScanner) (*domain.InstalledDocset, error) {
	var ds domain.InstalledDocset
	var installedAt string
	if err := row.Scan(&ds.Name, &ds.Title, &ds.Path, &installedAt); err != nil {
		return nil, err
	}
	ds.InstalledAt, _ = time.Parse(time.RFC3339, installedAt)
	return &ds, nil
}

func (r *SQLite) loadMeta(ds *domain.InstalledDocset) {
	if m, err := meta.ReadSideFile(r.fs, ds.Path); err == nil {
		ds.Meta = &m
	}
}

// reconcile aligns the index with the docset directory: rows whose
// directory vanished are dropped, directories never indexed are added.
func (r *SQLite) reconcile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query("SELECT name, path FROM docsets")
	if err != nil {
		return err
	}
	indexed := make(map[string]string)
	for rows.Next() {
		var name, path string
		if err := rows.Scan(&name, &path); err != nil {
			rows.Close()
			return err
		}
		indexed[name] = path
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for name, path := range indexed {
		if ok, _ := afero.DirExists(r.fs, path); !ok {
			if _, err := r.db.Exec("DELETE FROM docsets WHERE name = ?", name); err != nil {
				return err
			}
		}
	}

	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), DocsetSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), DocsetSuffix)
		if _, ok := indexed[name]; ok {
			continue
		}
		if _, err := r.add(filepath.Join(r.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the index database.
func (r *SQLite) Close() error {
	return r.db.Close()
}

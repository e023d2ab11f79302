// Package stores owns the on-disk cache directory holding intermediate
// sealing artifacts. It is the only package allowed to delete them.
package stores

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/prover"
)

var log = logging.Logger("stores")

// MetaFile marks a cache directory with the parameters it was created for.
// A reused directory whose marker does not match is rejected, never silently
// reinterpreted.
const MetaFile = "benchcache.json"

var ErrIncompatibleCache = errors.New("incompatible cache directory")

type CacheMeta struct {
	SectorSize abi.SectorSize `json:"sector_size"`
	ApiVersion string         `json:"api_version"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CacheDir is a filesystem location holding sealing artifacts, owned
// exclusively by one run between Acquire and Release.
type CacheDir struct {
	path  string
	fresh bool
	meta  CacheMeta
}

// Acquire opens or creates a cache directory. An empty pathHint generates a
// fresh unique directory under root; a non-empty hint reuses (or creates)
// that exact location. Reuse requires the recorded marker to match the
// requested sector size and api version.
func Acquire(root, pathHint string, ssize abi.SectorSize, ver prover.ApiVersion) (*CacheDir, error) {
	meta := CacheMeta{
		SectorSize: ssize,
		ApiVersion: ver.String(),
		CreatedAt:  time.Now().UTC(),
	}

	if pathHint == "" {
		dir := filepath.Join(root, "bench-"+uuid.New().String())
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, xerrors.Errorf("creating cache dir %s: %w", dir, err)
		}
		c := &CacheDir{path: dir, fresh: true, meta: meta}
		if err := c.writeMeta(); err != nil {
			return nil, err
		}
		log.Infof("created cache directory %s", dir)
		return c, nil
	}

	dir, err := homedir.Expand(pathHint)
	if err != nil {
		return nil, xerrors.Errorf("expanding cache path: %w", err)
	}

	fi, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, xerrors.Errorf("creating cache dir %s: %w", dir, err)
		}
		c := &CacheDir{path: dir, fresh: true, meta: meta}
		if err := c.writeMeta(); err != nil {
			return nil, err
		}
		log.Infof("created cache directory %s", dir)
		return c, nil
	case err != nil:
		return nil, xerrors.Errorf("stat cache dir %s: %w", dir, err)
	case !fi.IsDir():
		return nil, xerrors.Errorf("cache path %s is not a directory", dir)
	}

	prior, err := readMeta(dir)
	switch {
	case os.IsNotExist(err):
		empty, eerr := dirEmpty(dir)
		if eerr != nil {
			return nil, eerr
		}
		if !empty {
			return nil, xerrors.Errorf("%w: %s has artifacts but no %s marker", ErrIncompatibleCache, dir, MetaFile)
		}
		c := &CacheDir{path: dir, fresh: true, meta: meta}
		if err := c.writeMeta(); err != nil {
			return nil, err
		}
		return c, nil
	case err != nil:
		return nil, err
	}

	if prior.SectorSize != ssize || prior.ApiVersion != ver.String() {
		return nil, xerrors.Errorf("%w: %s was created for size=%d version=%s, requested size=%d version=%s",
			ErrIncompatibleCache, dir, prior.SectorSize, prior.ApiVersion, ssize, ver)
	}

	log.Infof("reusing cache directory %s (created %s)", dir, prior.CreatedAt.Format(time.RFC3339))
	return &CacheDir{path: dir, meta: prior}, nil
}

func readMeta(dir string) (CacheMeta, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return CacheMeta{}, err
		}
		return CacheMeta{}, xerrors.Errorf("reading cache marker: %w", err)
	}
	var m CacheMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return CacheMeta{}, xerrors.Errorf("%w: unparseable marker in %s: %v", ErrIncompatibleCache, dir, err)
	}
	return m, nil
}

func (c *CacheDir) writeMeta() error {
	b, err := json.MarshalIndent(&c.meta, "", "  ")
	if err != nil {
		return xerrors.Errorf("encoding cache marker: %w", err)
	}
	if err := ioutil.WriteFile(filepath.Join(c.path, MetaFile), b, 0644); err != nil {
		return xerrors.Errorf("writing cache marker: %w", err)
	}
	return nil
}

func dirEmpty(dir string) (bool, error) {
	ents, err := ioutil.ReadDir(dir)
	if err != nil {
		return false, xerrors.Errorf("reading cache dir %s: %w", dir, err)
	}
	return len(ents) == 0, nil
}

func (c *CacheDir) Path() string {
	return c.path
}

// Fresh reports whether the directory was created (rather than reused) by
// this run.
func (c *CacheDir) Fresh() bool {
	return c.fresh
}

func (c *CacheDir) Meta() CacheMeta {
	return c.meta
}

// Has reports whether a named artifact is present.
func (c *CacheDir) Has(name string) bool {
	_, err := os.Stat(filepath.Join(c.path, name))
	return err == nil
}

// PutArtifact writes an artifact atomically: a phase's output becomes
// visible in the cache all at once or not at all, so an interrupted run
// never leaves a half-written artifact for a resume to trip over.
func (c *CacheDir) PutArtifact(name string, data []byte) error {
	tmp := filepath.Join(c.path, name+".tmp")
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return xerrors.Errorf("writing artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(c.path, name)); err != nil {
		return xerrors.Errorf("committing artifact %s: %w", name, err)
	}
	return nil
}

func (c *CacheDir) GetArtifact(name string) ([]byte, error) {
	b, err := ioutil.ReadFile(filepath.Join(c.path, name))
	if err != nil {
		return nil, xerrors.Errorf("reading artifact %s: %w", name, err)
	}
	return b, nil
}

// Release ends this run's ownership. Unless preserve is set, the directory
// and everything in it is removed; removal failures for individual entries
// are collected so one stuck file does not hide the rest.
func (c *CacheDir) Release(preserve bool) error {
	if preserve {
		log.Infof("preserving cache directory %s", c.path)
		return nil
	}

	ents, err := ioutil.ReadDir(c.path)
	if err != nil {
		return xerrors.Errorf("reading cache dir for removal: %w", err)
	}

	var merr *multierror.Error
	for _, e := range ents {
		if err := os.RemoveAll(filepath.Join(c.path, e.Name())); err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("removing %s: %w", e.Name(), err))
		}
	}
	if err := os.Remove(c.path); err != nil {
		merr = multierror.Append(merr, xerrors.Errorf("removing %s: %w", c.path, err))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return err
	}
	log.Infof("removed cache directory %s", c.path)
	return nil
}

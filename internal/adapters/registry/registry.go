// Package registry persists trained artifacts as versioned files with a
// LATEST alias pointing at the most recent save.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/okian/passwatch/internal/domain/training"
	"github.com/okian/passwatch/pkg/logger"
	"github.com/okian/passwatch/pkg/metrics"
)

// Latest is the alias resolving to the most recently saved version.
const Latest = "latest"

const (
	filePrefix = "checkpoint_models_"
	fileSuffix = ".json.zst"
	latestFile = "LATEST"
)

var versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Registry stores artifacts under one directory. Saves are serialized; the
// version file is written before LATEST moves to it.
type Registry struct {
	dir    string
	mu     sync.Mutex
	logger logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a registry rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("model dir: %w", err)
	}
	r := &Registry{dir: dir}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("registry")
	}
	return r, nil
}

// Dir returns the registry directory.
func (r *Registry) Dir() string { return r.dir }

// Path returns the file an artifact version is stored in.
func (r *Registry) Path(version string) string {
	return filepath.Join(r.dir, filePrefix+version+fileSuffix)
}

// ValidateVersion rejects versions that are not safe file name components.
func ValidateVersion(version string) error {
	if strings.EqualFold(version, Latest) || !versionPattern.MatchString(version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// maxSuffix bounds the suffixes SaveUnique tries.
const maxSuffix = 100

// Save writes art under its version and points LATEST at it. Existing
// versions are never overwritten.
func (r *Registry) Save(ctx context.Context, art *training.Artifact) (string, error) {
	if err := art.Validate(); err != nil {
		return "", err
	}
	if err := ValidateVersion(art.Version); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(art.Version) {
		return "", fmt.Errorf("%w: %s", ErrVersionExists, art.Version)
	}
	return r.save(ctx, art)
}

// SaveUnique is Save, except a taken version gets the first free "_N" suffix
// (N from 2) and art.Version is updated to match.
func (r *Registry) SaveUnique(ctx context.Context, art *training.Artifact) (string, error) {
	if err := art.Validate(); err != nil {
		return "", err
	}
	if err := ValidateVersion(art.Version); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	base := art.Version
	for n := 2; r.exists(art.Version); n++ {
		if n > maxSuffix {
			return "", fmt.Errorf("%w: %s and %d suffixes", ErrVersionExists, base, maxSuffix-1)
		}
		art.Version = base + "_" + strconv.Itoa(n)
	}
	if err := ValidateVersion(art.Version); err != nil {
		return "", err
	}
	return r.save(ctx, art)
}

func (r *Registry) exists(version string) bool {
	_, err := os.Stat(r.Path(version))
	return err == nil
}

// save writes the version file then moves LATEST. Callers hold r.mu.
func (r *Registry) save(ctx context.Context, art *training.Artifact) (string, error) {
	path := r.Path(art.Version)
	data, err := encode(art)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(r.dir, latestFile), []byte(art.Version+"\n")); err != nil {
		return "", err
	}
	metrics.RecordArtifactSave()
	r.logger.Info(ctx, "artifact saved",
		logger.String("version", art.Version),
		logger.String("path", path),
		logger.Int("bytes", len(data)),
	)
	return path, nil
}

// Load reads a version, or the LATEST alias when version is "latest" or
// empty. The artifact is returned only if every part decoded and validated.
func (r *Registry) Load(ctx context.Context, version string) (*training.Artifact, error) {
	art, err := r.load(version)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrArtifactNotFound) {
			outcome = "not_found"
		}
		metrics.RecordArtifactLoad(outcome)
		return nil, err
	}
	metrics.RecordArtifactLoad("ok")
	r.logger.Info(ctx, "artifact loaded", logger.String("version", art.Version))
	return art, nil
}

func (r *Registry) load(version string) (*training.Artifact, error) {
	if version == "" || strings.EqualFold(version, Latest) {
		v, err := r.LatestVersion()
		if err != nil {
			return nil, err
		}
		version = v
	}
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Path(version))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: version %s", ErrArtifactNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	art, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: version %s: %v", ErrArtifactCorrupt, version, err)
	}
	if art.Version != version {
		return nil, fmt.Errorf("%w: file for %s holds version %s", ErrArtifactCorrupt, version, art.Version)
	}
	return art, nil
}

// LatestVersion returns the version LATEST points at.
func (r *Registry) LatestVersion() (string, error) {
	b, err := os.ReadFile(filepath.Join(r.dir, latestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no latest version", ErrArtifactNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read latest: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if err := ValidateVersion(v); err != nil {
		return "", fmt.Errorf("%w: latest alias: %v", ErrArtifactCorrupt, err)
	}
	return v, nil
}

// List returns the stored versions in ascending order.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(out)
	return out, nil
}

func encode(art *training.Artifact) ([]byte, error) {
	raw, err := json.Marshal(art)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func decode(data []byte) (*training.Artifact, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	var art training.Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, err
	}
	if err := art.Validate(); err != nil {
		return nil, err
	}
	return &art, nil
}

// writeAtomic writes to a temp file in the same directory and renames it.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Package registry versions trained model artifacts on disk:
//
//	<dir>/<name>.zip                         current artifact
//	<dir>/versions/<name>_v<N>_<acc>pct.zip  immutable archives
//	<dir>/model_registry.json                name -> {current, versions}
package registry

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// DefaultRegressionThreshold is the accuracy drop tolerated before a publish is blocked
const DefaultRegressionThreshold = 0.03

const registryFile = "model_registry.json"

// VersionInfo describes one archived model version
type VersionInfo struct {
	Version    string                 `json:"version"`
	Accuracy   float64                `json:"accuracy"`
	Samples    int                    `json:"samples"`
	TrainedAt  time.Time              `json:"trainedAt"`
	Parameters map[string]interface{} `json:"parameters"`
	FileName   string                 `json:"fileName"`
	Checksum   string                 `json:"checksum,omitempty"`
}

// Number returns N of a "vN" tag, 0 when malformed
func (v VersionInfo) Number() int {
	n, err := strconv.Atoi(strings.TrimPrefix(v.Version, "v"))
	if err != nil {
		return 0
	}
	return n
}

// Entry is the registry record of one model name
type Entry struct {
	Current  string        `json:"current"`
	Versions []VersionInfo `json:"versions"`
}

func (e *Entry) find(version string) (VersionInfo, bool) {
	for _, v := range e.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return VersionInfo{}, false
}

func (e *Entry) nextNumber() int {
	next := 1
	for _, v := range e.Versions {
		if n := v.Number(); n >= next {
			next = n + 1
		}
	}
	return next
}

// PublishOptions control a publish
type PublishOptions struct {
	Accuracy            float64
	SampleCount         int
	Parameters          map[string]interface{}
	BlockOnRegression   bool
	RegressionThreshold float64
}

// Registry is a JSON-backed, append-only ledger of model versions
type Registry struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger

	beforeCommit func()
}

// New creates a registry rooted at dir
func New(dir string, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(dir, "versions"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}
	return &Registry{dir: dir, logger: logger}, nil
}

// CurrentPath is where the current artifact of name lives
func (r *Registry) CurrentPath(name string) string {
	return filepath.Join(r.dir, name+".zip")
}

// ArchivePath is where an archived file lives
func (r *Registry) ArchivePath(fileName string) string {
	return filepath.Join(r.dir, "versions", fileName)
}

// Publish archives sourcePath as the next version of name and makes it current.
// With BlockOnRegression it refuses, without touching anything, a version whose accuracy is
// more than RegressionThreshold below a current version that has a positive accuracy.
func (r *Registry) Publish(name, sourcePath string, opts PublishOptions) (*VersionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(sourcePath); err != nil {
		return nil, &ModelError{Op: "publish", Model: name, Err: ErrArtifactMissing, Detail: sourcePath}
	}

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	entry := reg[name]
	if entry == nil {
		entry = &Entry{}
	}
	expected := entry.Current

	if opts.BlockOnRegression && entry.Current != "" {
		if cur, ok := entry.find(entry.Current); ok && cur.Accuracy > 0 && opts.Accuracy < cur.Accuracy-opts.RegressionThreshold {
			r.logger.Warn("Publish blocked by regression gate",
				zap.String("model", name),
				zap.String("current", cur.Version),
				zap.Float64("current_accuracy", cur.Accuracy),
				zap.Float64("new_accuracy", opts.Accuracy),
				zap.Float64("threshold", opts.RegressionThreshold))
			return nil, &ModelError{
				Op:      "publish",
				Model:   name,
				Version: cur.Version,
				Err:     ErrRegression,
				Detail:  fmt.Sprintf("new accuracy %.4f < current %.4f - %.4f", opts.Accuracy, cur.Accuracy, opts.RegressionThreshold),
			}
		}
	}

	n := entry.nextNumber()
	info := VersionInfo{
		Version:    fmt.Sprintf("v%d", n),
		Accuracy:   opts.Accuracy,
		Samples:    opts.SampleCount,
		TrainedAt:  time.Now().UTC(),
		Parameters: opts.Parameters,
		FileName:   fmt.Sprintf("%s_v%d_%.1fpct.zip", name, n, opts.Accuracy*100),
	}

	archive := r.ArchivePath(info.FileName)
	sum, err := CopyFile(sourcePath, archive)
	if err != nil {
		return nil, fmt.Errorf("failed to archive model: %w", err)
	}
	info.Checksum = sum

	staged, _, err := stageFile(archive, r.dir)
	if err != nil {
		r.discardArchive(info.FileName)
		return nil, fmt.Errorf("failed to stage current model: %w", err)
	}
	defer os.Remove(staged)

	entry.Versions = append(entry.Versions, info)
	entry.Current = info.Version
	if err := r.commit(name, expected, entry); err != nil {
		r.discardArchive(info.FileName)
		return nil, err
	}
	if err := os.Rename(staged, r.CurrentPath(name)); err != nil {
		return nil, fmt.Errorf("failed to install current model: %w", err)
	}

	r.logger.Info("Model version published",
		zap.String("model", name),
		zap.String("version", info.Version),
		zap.Float64("accuracy", info.Accuracy),
		zap.String("file", info.FileName))
	return &info, nil
}

// Rollback makes an archived version current again. Other versions are kept.
func (r *Registry) Rollback(name, version string) (*VersionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	entry := reg[name]
	if entry == nil {
		return nil, &ModelError{Op: "rollback", Model: name, Version: version, Err: ErrVersionNotFound}
	}
	info, ok := entry.find(version)
	if !ok {
		return nil, &ModelError{Op: "rollback", Model: name, Version: version, Err: ErrVersionNotFound}
	}

	archive := r.ArchivePath(info.FileName)
	if _, err := os.Stat(archive); err != nil {
		return nil, &ModelError{Op: "rollback", Model: name, Version: version, Err: ErrArtifactMissing, Detail: info.FileName}
	}
	if info.Checksum != "" {
		sum, err := checksumFile(archive)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum archive: %w", err)
		}
		if sum != info.Checksum {
			return nil, &ModelError{Op: "rollback", Model: name, Version: version, Err: ErrChecksumMismatch, Detail: info.FileName}
		}
	}

	expected := entry.Current
	staged, _, err := stageFile(archive, r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stage model: %w", err)
	}
	defer os.Remove(staged)

	entry.Current = info.Version
	if err := r.commit(name, expected, entry); err != nil {
		return nil, err
	}
	if err := os.Rename(staged, r.CurrentPath(name)); err != nil {
		return nil, fmt.Errorf("failed to restore model: %w", err)
	}

	r.logger.Info("Model rolled back",
		zap.String("model", name),
		zap.String("from", expected),
		zap.String("to", version))
	return &info, nil
}

// Versions returns every archived version of name in publish order
func (r *Registry) Versions(name string) ([]VersionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	if entry := reg[name]; entry != nil {
		return entry.Versions, nil
	}
	return nil, nil
}

// CurrentVersion returns the current version of name, nil when nothing was published
func (r *Registry) CurrentVersion(name string) (*VersionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}
	entry := reg[name]
	if entry == nil || entry.Current == "" {
		return nil, nil
	}
	info, ok := entry.find(entry.Current)
	if !ok {
		return nil, &ModelError{Op: "current", Model: name, Version: entry.Current, Err: ErrVersionNotFound}
	}
	return &info, nil
}

func (r *Registry) load() (map[string]*Entry, error) {
	reg := make(map[string]*Entry)

	data, err := os.ReadFile(filepath.Join(r.dir, registryFile))
	if errors.Is(err, os.ErrNotExist) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(data) == 0 {
		return reg, nil
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	return reg, nil
}

// commit stores entry under name if the on-disk current pointer still equals expected
func (r *Registry) commit(name, expected string, entry *Entry) error {
	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	reg, err := r.load()
	if err != nil {
		return err
	}
	onDisk := ""
	if e := reg[name]; e != nil {
		onDisk = e.Current
	}
	if onDisk != expected {
		return &ModelError{Op: "commit", Model: name, Version: onDisk, Err: ErrConcurrentUpdate}
	}
	reg[name] = entry

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	return writeAtomic(filepath.Join(r.dir, registryFile), data)
}

// discardArchive removes an archive written for a publish that did not commit,
// unless the ledger on disk references the same file name.
func (r *Registry) discardArchive(fileName string) {
	if reg, err := r.load(); err == nil {
		for _, e := range reg {
			for _, v := range e.Versions {
				if v.FileName == fileName {
					return
				}
			}
		}
	}
	if err := os.Remove(r.ArchivePath(fileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("Failed to remove uncommitted archive", zap.String("file", fileName), zap.Error(err))
	}
}

// CopyFile copies src to dst through a temp file in dst's directory and returns the blake2b checksum
func CopyFile(src, dst string) (string, error) {
	tmp, sum, err := stageFile(src, filepath.Dir(dst))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return sum, nil
}

// stageFile copies src into a new temp file in dir and returns its path and blake2b checksum
func stageFile(src, dir string) (string, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", "", err
	}

	h, _ := blake2b.New256(nil)
	_, err = io.Copy(io.MultiWriter(tmp, h), in)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

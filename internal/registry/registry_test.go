package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "models"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return r, dir
}

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestPublishArchivesAndSetsCurrent(t *testing.T) {
	r, dir := newTestRegistry(t)

	v1, err := r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.9, SampleCount: 10})
	require.NoError(t, err)
	assert.Equal(t, "v1", v1.Version)
	assert.Equal(t, "ner_v1_90.0pct.zip", v1.FileName)
	assert.NotEmpty(t, v1.Checksum)

	v2, err := r.Publish("ner", writeArtifact(t, dir, "b.zip", "two"), PublishOptions{Accuracy: 0.925, SampleCount: 12})
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Version)
	assert.Equal(t, "ner_v2_92.5pct.zip", v2.FileName)

	assert.Equal(t, "two", readFile(t, r.CurrentPath("ner")))
	assert.Equal(t, "one", readFile(t, r.ArchivePath(v1.FileName)))

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Equal(t, "v2", cur.Version)

	versions, err := r.Versions("ner")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	// On-disk layout
	var onDisk map[string]struct {
		Current  string `json:"current"`
		Versions []struct {
			Version  string `json:"version"`
			FileName string `json:"fileName"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(dir, "models", "model_registry.json"))), &onDisk))
	assert.Equal(t, "v2", onDisk["ner"].Current)
	assert.Equal(t, "ner_v1_90.0pct.zip", onDisk["ner"].Versions[0].FileName)
}

func TestPublishBlockedByRegression(t *testing.T) {
	r, dir := newTestRegistry(t)

	_, err := r.Publish("ner", writeArtifact(t, dir, "good.zip", "good"), PublishOptions{Accuracy: 0.95})
	require.NoError(t, err)

	_, err = r.Publish("ner", writeArtifact(t, dir, "bad.zip", "bad"), PublishOptions{
		Accuracy:            0.90,
		BlockOnRegression:   true,
		RegressionThreshold: DefaultRegressionThreshold,
	})
	require.Error(t, err)

	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.ErrorIs(t, err, ErrRegression)
	assert.Equal(t, "publish", me.Op)

	assert.Equal(t, "good", readFile(t, r.CurrentPath("ner")))
	versions, err := r.Versions("ner")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	entries, err := os.ReadDir(filepath.Join(dir, "models", "versions"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublishWithinThresholdOrUnblocked(t *testing.T) {
	r, dir := newTestRegistry(t)

	_, err := r.Publish("ner", writeArtifact(t, dir, "a.zip", "a"), PublishOptions{Accuracy: 0.95})
	require.NoError(t, err)

	v, err := r.Publish("ner", writeArtifact(t, dir, "b.zip", "b"), PublishOptions{
		Accuracy: 0.93, BlockOnRegression: true, RegressionThreshold: 0.03,
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", v.Version)

	v, err = r.Publish("ner", writeArtifact(t, dir, "c.zip", "c"), PublishOptions{Accuracy: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "v3", v.Version)
}

func TestPublishMissingSource(t *testing.T) {
	r, dir := newTestRegistry(t)
	_, err := r.Publish("ner", filepath.Join(dir, "missing.zip"), PublishOptions{})
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestRollback(t *testing.T) {
	r, dir := newTestRegistry(t)

	_, err := r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.8})
	require.NoError(t, err)
	_, err = r.Publish("ner", writeArtifact(t, dir, "b.zip", "two"), PublishOptions{Accuracy: 0.85})
	require.NoError(t, err)

	info, err := r.Rollback("ner", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", info.Version)
	assert.Equal(t, "one", readFile(t, r.CurrentPath("ner")))

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Equal(t, "v1", cur.Version)

	versions, err := r.Versions("ner")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	// Numbering continues after the highest version
	v, err := r.Publish("ner", writeArtifact(t, dir, "c.zip", "three"), PublishOptions{Accuracy: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "v3", v.Version)
}

func TestRollbackToDeletedArchive(t *testing.T) {
	r, dir := newTestRegistry(t)

	v1, err := r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.8})
	require.NoError(t, err)
	_, err = r.Publish("ner", writeArtifact(t, dir, "b.zip", "two"), PublishOptions{Accuracy: 0.85})
	require.NoError(t, err)

	require.NoError(t, os.Remove(r.ArchivePath(v1.FileName)))

	_, err = r.Rollback("ner", "v1")
	assert.ErrorIs(t, err, ErrArtifactMissing)

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Equal(t, "v2", cur.Version)
	assert.Equal(t, "two", readFile(t, r.CurrentPath("ner")))
}

func TestRollbackRejectsCorruptedArchive(t *testing.T) {
	r, dir := newTestRegistry(t)

	v1, err := r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.8})
	require.NoError(t, err)
	_, err = r.Publish("ner", writeArtifact(t, dir, "b.zip", "two"), PublishOptions{Accuracy: 0.85})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(r.ArchivePath(v1.FileName), []byte("tampered"), 0644))

	_, err = r.Rollback("ner", "v1")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestRollbackUnknownVersion(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Rollback("ner", "v9")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func leftoverTemps(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	return matches
}

func TestPublishLosingConcurrentUpdateKeepsCurrentArtifact(t *testing.T) {
	r, dir := newTestRegistry(t)
	other, err := New(filepath.Join(dir, "models"), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.8})
	require.NoError(t, err)

	r.beforeCommit = func() {
		r.beforeCommit = nil
		_, err := other.Publish("ner", writeArtifact(t, dir, "theirs.zip", "theirs"), PublishOptions{Accuracy: 0.7})
		require.NoError(t, err)
	}
	_, err = r.Publish("ner", writeArtifact(t, dir, "mine.zip", "mine"), PublishOptions{Accuracy: 0.9})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	assert.Equal(t, "theirs", readFile(t, r.CurrentPath("ner")))
	assert.NoFileExists(t, r.ArchivePath("ner_v2_90.0pct.zip"))
	assert.FileExists(t, r.ArchivePath("ner_v2_70.0pct.zip"))
	assert.Empty(t, leftoverTemps(t, filepath.Join(dir, "models")))

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Equal(t, "v2", cur.Version)
	assert.Equal(t, 0.7, cur.Accuracy)
}

func TestRollbackLosingConcurrentUpdateKeepsCurrentArtifact(t *testing.T) {
	r, dir := newTestRegistry(t)
	other, err := New(filepath.Join(dir, "models"), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = r.Publish("ner", writeArtifact(t, dir, "a.zip", "one"), PublishOptions{Accuracy: 0.8})
	require.NoError(t, err)
	_, err = r.Publish("ner", writeArtifact(t, dir, "b.zip", "two"), PublishOptions{Accuracy: 0.85})
	require.NoError(t, err)

	r.beforeCommit = func() {
		r.beforeCommit = nil
		_, err := other.Publish("ner", writeArtifact(t, dir, "c.zip", "three"), PublishOptions{Accuracy: 0.9})
		require.NoError(t, err)
	}
	_, err = r.Rollback("ner", "v1")
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	assert.Equal(t, "three", readFile(t, r.CurrentPath("ner")))
	assert.Empty(t, leftoverTemps(t, filepath.Join(dir, "models")))

	cur, err := r.CurrentVersion("ner")
	require.NoError(t, err)
	assert.Equal(t, "v3", cur.Version)
}

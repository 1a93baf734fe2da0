package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestGetModelsDir(t *testing.T) {
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))

	t.Setenv(EnvModelsDir, "/from/env")
	assert.Equal(t, "/from/env", GetModelsDir(""))

	t.Setenv(EnvModelsDir, "")
	assert.Equal(t, DefaultModelsDir, filepath.Base(GetModelsDir("")))
}

func TestResolvePrefersOrganizedLayout(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, DetectionDB), DetectionPath(dir))

	organized := filepath.Join(dir, TypeDetection, DetectionDB)
	touch(t, organized)
	assert.Equal(t, organized, DetectionPath(dir))
}

func TestBackendPaths(t *testing.T) {
	dir := t.TempDir()
	model, dict := CTCPaths(dir)
	assert.Equal(t, filepath.Join(dir, RecognitionCTC), model)
	assert.Equal(t, filepath.Join(dir, DictionaryCTC), dict)

	touch(t, filepath.Join(dir, TypeDictionaries, Seq2SeqVocab))
	enc, dec, vocab := Seq2SeqPaths(dir)
	assert.Equal(t, filepath.Join(dir, Seq2SeqEncoder), enc)
	assert.Equal(t, filepath.Join(dir, Seq2SeqDecoder), dec)
	assert.Equal(t, filepath.Join(dir, TypeDictionaries, Seq2SeqVocab), vocab)
}

func TestValidateExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.onnx")
	touch(t, present)
	require.NoError(t, ValidateExists(present))

	err := ValidateExists(present, filepath.Join(dir, "b.onnx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.onnx")
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "PP-OCRv5_mobile_det", Version("/models/detection/PP-OCRv5_mobile_det.onnx"))
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, TypeDetection, DetectionDB))

	catalog := Catalog(dir)
	require.Len(t, catalog, 6)
	assert.Equal(t, "onnx-db", catalog[0].Backend)
	assert.True(t, catalog[0].Present)
	for _, m := range catalog[1:] {
		assert.False(t, m.Present, m.Filename)
	}
}

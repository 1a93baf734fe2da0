// Package models locates model and vocabulary files on disk.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Model file names.
const (
	DetectionDB = "PP-OCRv5_mobile_det.onnx"

	RecognitionCTC = "PP-OCRv5_mobile_rec.onnx"
	DictionaryCTC  = "ppocr_keys_v1.txt"

	Seq2SeqEncoder = "seq2seq_encoder.onnx"
	Seq2SeqDecoder = "seq2seq_decoder.onnx"
	Seq2SeqVocab   = "seq2seq_vocab.txt"
)

// Directory layout under the models root.
const (
	TypeDetection    = "detection"
	TypeRecognition  = "recognition"
	TypeDictionaries = "dictionaries"
)

// DefaultModelsDir is used relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models root.
const EnvModelsDir = "LEDGERSCAN_MODELS_DIR"

// ModelInfo describes one file a backend needs.
type ModelInfo struct {
	Backend  string `json:"backend"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Present  bool   `json:"present"`
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// GetModelsDir resolves the models root.
// Priority: explicit dir, environment variable, project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// Resolve returns <root>/<type>/<filename> when it exists, else the flat
// <root>/<filename>.
func Resolve(modelsDir, modelType, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(base, filename)
}

// DetectionPath returns the DB detection model path.
func DetectionPath(modelsDir string) string {
	return Resolve(modelsDir, TypeDetection, DetectionDB)
}

// CTCPaths returns the CTC recognition model and its dictionary.
func CTCPaths(modelsDir string) (model, dict string) {
	return Resolve(modelsDir, TypeRecognition, RecognitionCTC), Resolve(modelsDir, TypeDictionaries, DictionaryCTC)
}

// Seq2SeqPaths returns the encoder, decoder and vocabulary paths.
func Seq2SeqPaths(modelsDir string) (encoder, decoder, vocab string) {
	return Resolve(modelsDir, TypeRecognition, Seq2SeqEncoder),
		Resolve(modelsDir, TypeRecognition, Seq2SeqDecoder),
		Resolve(modelsDir, TypeDictionaries, Seq2SeqVocab)
}

// ValidateExists returns an error naming the first missing path.
func ValidateExists(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("model file not found: %s", p)
		}
	}
	return nil
}

// Version derives a stable version label from a model path, used in
// processing metadata.
func Version(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Catalog lists every file the ONNX backends look for under modelsDir.
func Catalog(modelsDir string) []ModelInfo {
	entry := func(backend, typ, file string) ModelInfo {
		p := Resolve(modelsDir, typ, file)
		_, err := os.Stat(p)
		return ModelInfo{Backend: backend, Type: typ, Filename: file, Path: p, Present: err == nil}
	}
	return []ModelInfo{
		entry("onnx-db", TypeDetection, DetectionDB),
		entry("onnx-ctc", TypeRecognition, RecognitionCTC),
		entry("onnx-ctc", TypeDictionaries, DictionaryCTC),
		entry("onnx-seq2seq", TypeRecognition, Seq2SeqEncoder),
		entry("onnx-seq2seq", TypeRecognition, Seq2SeqDecoder),
		entry("onnx-seq2seq", TypeDictionaries, Seq2SeqVocab),
	}
}

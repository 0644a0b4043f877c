package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-light/internal/emotion"
	"github.com/Brownie44l1/fer-light/internal/imageproc"
)

func validMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, 64, 64, 3},
		OutputShape: []int64{1, 7},
		Classes:     emotion.Names(),
		ImageSize:   64,
	}
}

func writeMetadata(t *testing.T, m Metadata) string {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	m, err := LoadMetadata(writeMetadata(t, validMetadata()))
	require.NoError(t, err)

	assert.Equal(t, "input", m.InputName)
	assert.Equal(t, "output", m.OutputName)
	assert.Equal(t, 64*64*3, m.InputSize())

	n := m.Normalizer()
	assert.Equal(t, 64, n.Size)
	assert.Equal(t, imageproc.NHWC, n.Layout)
}

func TestLoadMetadataChannelsFirst(t *testing.T) {
	meta := validMetadata()
	meta.InputShape = []int64{1, 3, 64, 64}
	meta.Layout = "nchw"
	meta.InputName = "pixels"

	m, err := LoadMetadata(writeMetadata(t, meta))
	require.NoError(t, err)
	assert.Equal(t, "pixels", m.InputName)
	assert.Equal(t, imageproc.NCHW, m.Normalizer().Layout)
}

func TestLoadMetadataErrors(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadMetadata(bad)
	assert.Error(t, err)
}

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Metadata)
	}{
		{"wrong input size", func(m *Metadata) { m.InputShape = []int64{1, 48, 48, 3} }},
		{"layout mismatch", func(m *Metadata) { m.Layout = "nchw" }},
		{"unknown layout", func(m *Metadata) { m.Layout = "hwcn" }},
		{"wrong class count", func(m *Metadata) { m.OutputShape = []int64{1, 8} }},
		{"reordered classes", func(m *Metadata) {
			m.Classes = []string{"Angry", "Disgust", "Fear", "Sad", "Happy", "Surprise", "Neutral"}
		}},
		{"wrong label set version", func(m *Metadata) { m.LabelSetVersion = "ck+-v3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}

	m := validMetadata()
	m.ImageSize = 0
	require.NoError(t, m.Validate())
	assert.Equal(t, imageproc.DefaultSize, m.ImageSize)
}

func TestNewPredictionResponse(t *testing.T) {
	resp, err := NewPredictionResponse([]float32{0.05, 0.05, 0.05, 0.6, 0.1, 0.1, 0.05})
	require.NoError(t, err)

	assert.Equal(t, "Happy", resp.Class)
	assert.InDelta(t, 0.6, resp.Confidence, 1e-6)
	assert.Len(t, resp.Predictions, 7)
	assert.InDelta(t, 0.1, resp.Predictions["Sad"], 1e-6)

	_, err = NewPredictionResponse([]float32{1})
	assert.True(t, errors.Is(err, ErrInference))
}

func TestClassifyRejectsWrongSize(t *testing.T) {
	s := &Server{Metadata: validMetadata()}

	_, err := s.Classify(make([]float32, 10))
	assert.True(t, errors.Is(err, ErrInference))
}

package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/Brownie44l1/fer-light/internal/emotion"
	"github.com/Brownie44l1/fer-light/internal/imageproc"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// LoadMetadata reads and validates the metadata file of an artifact.
func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks the artifact against the serving contract: one square RGB
// image in, one score per emotion label out, classes in label order.
func (m *Metadata) Validate() error {
	layout, err := imageproc.ParseLayout(m.Layout)
	if err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}

	if m.ImageSize <= 0 {
		m.ImageSize = imageproc.DefaultSize
	}
	want := imageproc.NewNormalizer(m.ImageSize, layout).Shape()
	if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("invalid metadata: input shape %v, expected %v", m.InputShape, want)
	}

	wantOut := []int64{1, int64(len(emotion.Labels))}
	if !slices.Equal(m.OutputShape, wantOut) {
		return fmt.Errorf("invalid metadata: output shape %v, expected %v", m.OutputShape, wantOut)
	}

	if err := emotion.ValidateClasses(m.Classes, m.LabelSetVersion); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}

	if m.InputName == "" {
		m.InputName = defaultInputName
	}
	if m.OutputName == "" {
		m.OutputName = defaultOutputName
	}
	return nil
}

// Normalizer returns the image normalizer matching the artifact input.
func (m Metadata) Normalizer() imageproc.Normalizer {
	layout, _ := imageproc.ParseLayout(m.Layout)
	return imageproc.NewNormalizer(m.ImageSize, layout)
}

// InputSize is the flat element count of one input tensor.
func (m Metadata) InputSize() int {
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}

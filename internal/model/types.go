package model

import (
	"time"

	"github.com/Brownie44l1/fer-light/internal/emotion"
)

// Metadata describes the exported artifact. It is written next to the .onnx
// file by the export step.
type Metadata struct {
	InputShape      []int64  `json:"input_shape"`
	OutputShape     []int64  `json:"output_shape"`
	Classes         []string `json:"classes"`
	ImageSize       int      `json:"image_size"`
	Layout          string   `json:"layout,omitempty"`
	LabelSetVersion string   `json:"label_set_version,omitempty"`
	InputName       string   `json:"input_name,omitempty"`
	OutputName      string   `json:"output_name,omitempty"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

// InferenceResult is the outcome of one upload, from prediction through the
// light update.
type InferenceResult struct {
	RequestID       string        `json:"request_id"`
	Timestamp       time.Time     `json:"timestamp"`
	Emotion         emotion.Label `json:"emotion"`
	Confidence      float32       `json:"confidence"`
	Brightness      int           `json:"brightness"`
	ActuatorSuccess bool          `json:"actuator_success"`
	ActuatorError   string        `json:"actuator_error,omitempty"`
}

package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/fer-light/internal/emotion"
)

// ErrInference covers bad input sizes and failed session runs.
var ErrInference = errors.New("inference failed")

// Options tune how the ONNX runtime is brought up.
type Options struct {
	// SharedLibraryPath points at libonnxruntime when it is not on the
	// default loader path.
	SharedLibraryPath string
}

// Server owns the ONNX session. The session is bound to one pair of
// preallocated tensors, so runs are serialized.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(modelPath, metadataPath string, opts Options) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify runs one forward pass and returns a copy of the class scores.
func (s *Server) Classify(inputData []float32) ([]float32, error) {
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInference, want, len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Predict classifies inputData and reports every class score.
func (s *Server) Predict(inputData []float32) (*PredictionResponse, error) {
	scores, err := s.Classify(inputData)
	if err != nil {
		return nil, err
	}
	return NewPredictionResponse(scores)
}

// NewPredictionResponse labels a score vector.
func NewPredictionResponse(scores []float32) (*PredictionResponse, error) {
	label, idx, err := emotion.Resolve(scores)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	predictions := make(map[string]float32, len(scores))
	for i, val := range scores {
		predictions[emotion.Labels[i].String()] = val
	}

	return &PredictionResponse{
		Class:       label.String(),
		Confidence:  scores[idx],
		Predictions: predictions,
	}, nil
}

// Classes returns the class names the artifact was exported with.
func (s *Server) Classes() []string {
	return s.Metadata.Classes
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

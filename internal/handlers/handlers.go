package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/fer-light/internal/emotion"
	"github.com/Brownie44l1/fer-light/internal/imageproc"
	"github.com/Brownie44l1/fer-light/internal/model"
)

const (
	imageField       = "image"
	defaultMaxUpload = 10 << 20
	recordTimeout    = 2 * time.Second
	msgNoImage       = "No image provided"
	msgLightFailed   = "Failed to adjust light brightness"
	msgImageTooLarge = "Image too large"
	processErrPrefix = "Error processing image: "
)

var (
	ErrNoImage       = errors.New("no image provided")
	ErrImageTooLarge = errors.New("image exceeds upload limit")
)

// Classifier scores one normalized image tensor.
type Classifier interface {
	Classify(input []float32) ([]float32, error)
}

// Light applies a brightness percentage to the bridge.
type Light interface {
	SetBrightness(ctx context.Context, percent int) error
}

// Recorder receives every InferenceResult after the light update.
type Recorder interface {
	Record(ctx context.Context, result model.InferenceResult) error
}

// Options configure the optional parts of a Handler.
type Options struct {
	MaxUploadBytes int64
	StaticDir      string
	Classes        []string
	Recorders      []Recorder
}

type Handler struct {
	classifier Classifier
	normalizer imageproc.Normalizer
	light      Light
	recorders  []Recorder
	classes    []string
	maxUpload  int64
	staticDir  string
	logger     *zap.Logger
	now        func() time.Time
}

func NewHandler(classifier Classifier, normalizer imageproc.Normalizer, light Light, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.Classes == nil {
		opts.Classes = emotion.Names()
	}
	return &Handler{
		classifier: classifier,
		normalizer: normalizer,
		light:      light,
		recorders:  opts.Recorders,
		classes:    opts.Classes,
		maxUpload:  opts.MaxUploadBytes,
		staticDir:  opts.StaticDir,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"classes":           h.classes,
		"label_set_version": emotion.LabelSetVersion,
	})
}

// Index serves index.html from the static directory when there is one.
func (h *Handler) Index(c *gin.Context) {
	if h.staticDir != "" {
		index := filepath.Join(h.staticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			c.File(index)
			return
		}
	}
	c.String(http.StatusOK, "fer-light is running")
}

// Predict classifies a raw, already normalized tensor.
func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if expected := h.normalizer.TensorLen(); len(req.Image) != expected {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image)),
		})
		return
	}

	result, err := h.predict(req.Image)
	if err != nil {
		h.logger.Error("prediction failed", zap.String("request_id", requestID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PredictFromImage classifies an uploaded image without touching the light.
func (h *Handler) PredictFromImage(c *gin.Context) {
	data, err := h.readImage(c)
	if err != nil {
		h.respondReadError(c, err)
		return
	}

	tensor, format, err := h.normalizer.FromBytes(data)
	if err != nil {
		h.logger.Warn("image decode failed", zap.String("request_id", requestID(c)), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image format"})
		return
	}
	h.logger.Debug("image normalized", zap.String("format", format), zap.Int64s("shape", tensor.Shape))

	result, err := h.predict(tensor.Data)
	if err != nil {
		h.logger.Error("prediction failed", zap.String("request_id", requestID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// UploadImage runs the full pipeline: decode, classify, pick a brightness and
// update the light. A failed light update still reports the emotion.
func (h *Handler) UploadImage(c *gin.Context) {
	id := requestID(c)

	data, err := h.readImage(c)
	if err != nil {
		h.respondReadError(c, err)
		return
	}

	result, err := h.Process(c.Request.Context(), id, data)
	if err != nil {
		h.logger.Error("error processing image", zap.String("request_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": processErrPrefix + err.Error()})
		return
	}

	if !result.ActuatorSuccess {
		c.JSON(http.StatusInternalServerError, gin.H{
			"predicted_emotion": result.Emotion.String(),
			"error":             msgLightFailed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predicted_emotion": result.Emotion.String(),
		"brightness":        result.Brightness,
	})
}

// Process takes one image from raw bytes to a light update. The returned
// error covers decoding and inference only; actuation failures are reported
// in the result.
func (h *Handler) Process(ctx context.Context, id string, data []byte) (model.InferenceResult, error) {
	log := h.logger.With(zap.String("request_id", id))

	tensor, format, err := h.normalizer.FromBytes(data)
	if err != nil {
		return model.InferenceResult{}, err
	}
	log.Debug("image normalized", zap.String("format", format), zap.Int64s("shape", tensor.Shape))

	scores, err := h.classifier.Classify(tensor.Data)
	if err != nil {
		return model.InferenceResult{}, err
	}

	label, idx, err := emotion.Resolve(scores)
	if err != nil {
		return model.InferenceResult{}, fmt.Errorf("%w: %v", model.ErrInference, err)
	}

	result := model.InferenceResult{
		RequestID:  id,
		Timestamp:  h.now().UTC(),
		Emotion:    label,
		Confidence: scores[idx],
		Brightness: emotion.Brightness(label),
	}
	log.Info("emotion predicted",
		zap.String("emotion", label.String()),
		zap.Float32("confidence", result.Confidence),
		zap.Int("brightness", result.Brightness))

	if err := h.light.SetBrightness(ctx, result.Brightness); err != nil {
		log.Warn("failed to adjust light brightness", zap.Error(err))
		result.ActuatorError = err.Error()
	} else {
		result.ActuatorSuccess = true
	}

	h.record(ctx, log, result)
	return result, nil
}

func (h *Handler) record(ctx context.Context, log *zap.Logger, result model.InferenceResult) {
	if len(h.recorders) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	for _, r := range h.recorders {
		if err := r.Record(ctx, result); err != nil {
			log.Warn("failed to record prediction", zap.Error(err))
		}
	}
}

func (h *Handler) predict(input []float32) (*model.PredictionResponse, error) {
	scores, err := h.classifier.Classify(input)
	if err != nil {
		return nil, err
	}
	return model.NewPredictionResponse(scores)
}

// readImage returns the bytes of the multipart image field.
func (h *Handler) readImage(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile(imageField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrImageTooLarge
		}
		return nil, ErrNoImage
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	h.logger.Debug("image received",
		zap.String("request_id", requestID(c)),
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(data)))
	return data, nil
}

func (h *Handler) respondReadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoImage):
		h.logger.Info(msgNoImage, zap.String("request_id", requestID(c)))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoImage})
	case errors.Is(err, ErrImageTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgImageTooLarge})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": processErrPrefix + err.Error()})
	}
}

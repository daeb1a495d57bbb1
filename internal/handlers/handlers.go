package handlers

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/metrics"
	"github.com/Brownie44l1/caulicare-api/internal/model"
	"github.com/Brownie44l1/caulicare-api/internal/preprocess"
)

const notALeafMessage = "This image does not appear to be a valid cauliflower leaf. Please upload a clear leaf image."

type Handler struct {
	registry    *model.Registry
	metrics     *metrics.Metrics
	serviceName string
	policy      config.PredictionConfig
}

func NewHandler(registry *model.Registry, m *metrics.Metrics, serviceName string, policy config.PredictionConfig) *Handler {
	return &Handler{
		registry:    registry,
		metrics:     m,
		serviceName: serviceName,
		policy:      policy,
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("%s running", h.serviceName),
	})
}

func (h *Handler) Favicon(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
		Models: h.registry.Names(),
	})
}

// Models lists the configured models with their input contract.
func (h *Handler) Models(c *gin.Context) {
	entries := h.registry.All()
	out := make([]ModelInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, ModelInfo{
			Name:          e.Nickname,
			Width:         e.Width,
			Height:        e.Height,
			Normalization: string(e.Normalization),
		})
	}
	c.JSON(http.StatusOK, out)
}

// Predict classifies the upload with the default model and rejects
// predictions below the confidence threshold as "not a leaf".
func (h *Handler) Predict(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	entry, err := h.registry.Get(h.policy.DefaultModel)
	if err != nil {
		h.fail(c, err)
		return
	}

	img, ok := h.decode(c, up)
	if !ok {
		return
	}

	pred, err := entry.Predict(img)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ObservePrediction(entry.Nickname, pred.Label, pred.Elapsed)

	if pred.Confidence < h.policy.ConfidenceThreshold {
		loggerFrom(c).Info("Prediction below confidence threshold",
			"model", entry.Nickname, "label", pred.Label, "confidence", pred.Confidence)
		h.reject(c, http.StatusBadRequest, metrics.ReasonLowConfidence, notALeafMessage)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Label:      pred.Label,
		Confidence: round4(pred.Confidence),
	})
}

// PredictAll runs every model on the upload. One failure fails the request.
func (h *Handler) PredictAll(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	img, ok := h.decode(c, up)
	if !ok {
		return
	}

	preds, err := h.registry.PredictAll(c.Request.Context(), img, h.policy.Parallel)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make(map[string]PredictResponse, len(preds))
	for name, pred := range preds {
		h.metrics.ObservePrediction(name, pred.Label, pred.Elapsed)
		loggerFrom(c).Debug("Model prediction", "model", name, "label", pred.Label, "confidence", pred.Confidence)
		out[name] = PredictResponse{Label: pred.Label, Confidence: pred.Confidence}
	}

	c.JSON(http.StatusOK, out)
}

// PredictModel runs the model named by model_name, without a threshold.
func (h *Handler) PredictModel(c *gin.Context) {
	name, fromQuery := c.GetQuery(modelNameField)
	if fromQuery && !h.knownModel(c, name) {
		return
	}

	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	if !fromQuery {
		name = up.ModelName
		if !h.knownModel(c, name) {
			return
		}
	}

	entry, err := h.registry.Get(name)
	if err != nil {
		h.fail(c, err)
		return
	}

	img, ok := h.decode(c, up)
	if !ok {
		return
	}

	pred, err := entry.Predict(img)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ObservePrediction(entry.Nickname, pred.Label, pred.Elapsed)

	c.JSON(http.StatusOK, ModelPredictResponse{
		Model:      entry.Nickname,
		Label:      pred.Label,
		Confidence: pred.Confidence,
	})
}

func (h *Handler) knownModel(c *gin.Context, name string) bool {
	if _, err := h.registry.Get(name); err != nil {
		h.reject(c, http.StatusBadRequest, metrics.ReasonUnknownModel,
			fmt.Sprintf("Invalid model. Choose from: %v", h.registry.Names()))
		return false
	}
	return true
}

func (h *Handler) decode(c *gin.Context, up *upload) (image.Image, bool) {
	img, format, err := preprocess.Decode(up.Data, h.policy.MaxImagePixels)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}

	b := img.Bounds()
	loggerFrom(c).Debug("Decoded upload", "filename", up.Filename, "format", format,
		"width", b.Dx(), "height", b.Dy(), "bytes", len(up.Data))
	return img, true
}

// reject answers a client-side or policy error.
func (h *Handler) reject(c *gin.Context, status int, reason, detail string) {
	if reason != "" {
		h.metrics.ObserveRejection(reason)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}

// fail logs err with its stack trace and answers 500 with its message.
func (h *Handler) fail(c *gin.Context, err error) {
	h.metrics.ObserveRejection(metrics.ReasonFailure)
	loggerFrom(c).Error("Prediction failed", "error", err.Error(), "trace", fmt.Sprintf("%+v", err))

	var unknown *model.UnknownClassError
	detail := fmt.Sprintf("Inference error: %v", err)
	switch {
	case errors.Is(err, preprocess.ErrDecode):
		detail = fmt.Sprintf("Image decode error: %v", err)
	case errors.As(err, &unknown):
		detail = fmt.Sprintf("Unknown class index: %d", unknown.Index)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: detail})
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func loggerFrom(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

package model

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/preprocess"
)

// Model is a loaded classifier: a batched NHWC tensor in, one score per class out.
type Model interface {
	Run(input *preprocess.Tensor) ([]float32, error)
	OutputSize() int
	Close() error
}

// Loader opens the artifact at path for the given configuration.
type Loader func(cfg config.ModelConfig, path string) (Model, error)

// Prediction is the arg-max of one model's output.
type Prediction struct {
	Index      int
	Label      string
	Confidence float64
	Elapsed    time.Duration
}

// Entry is an immutable registry record.
type Entry struct {
	Nickname      string
	Path          string
	Width         int
	Height        int
	Normalization config.Normalization

	normalize preprocess.NormalizeFunc
	model     Model
}

// Prepare resizes and normalizes img for this model and adds the batch
// dimension, yielding shape (1, Height, Width, 3).
func (e *Entry) Prepare(img image.Image) *preprocess.Tensor {
	tensor := preprocess.Prepare(img, e.Width, e.Height)
	e.normalize(tensor)
	return tensor.Batch()
}

// Predict runs the full pipeline for one image.
func (e *Entry) Predict(img image.Image) (*Prediction, error) {
	start := time.Now()
	scores, err := e.model.Run(e.Prepare(img))
	if err != nil {
		return nil, errors.Wrapf(ErrInference, "%s: %v", e.Nickname, err)
	}

	idx, conf, err := argmax(scores)
	if err != nil {
		return nil, errors.Wrapf(ErrInference, "%s: %v", e.Nickname, err)
	}
	if idx >= len(ClassLabels) {
		return nil, errors.WithStack(&UnknownClassError{Model: e.Nickname, Index: idx})
	}

	return &Prediction{
		Index:      idx,
		Label:      ClassLabels[idx],
		Confidence: float64(conf),
		Elapsed:    time.Since(start),
	}, nil
}

// argmax returns the first index of the maximum score.
func argmax(scores []float32) (int, float32, error) {
	if len(scores) == 0 {
		return 0, 0, errors.New("empty output vector")
	}

	maxIdx, maxVal := 0, scores[0]
	for i, v := range scores[1:] {
		if v > maxVal {
			maxIdx, maxVal = i+1, v
		}
	}
	return maxIdx, maxVal, nil
}

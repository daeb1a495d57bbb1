package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/preprocess"
)

// --- Mock types ---

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Run(input *preprocess.Tensor) ([]float32, error) {
	args := m.Called(input)
	if scores, ok := args.Get(0).([]float32); ok {
		return scores, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModel) OutputSize() int {
	return m.Called().Int(0)
}

func (m *MockModel) Close() error {
	return m.Called().Error(0)
}

// --- Helpers ---

func scores(winner int, conf float32) []float32 {
	out := make([]float32, NumClasses)
	rest := (1 - conf) / float32(NumClasses-1)
	for i := range out {
		out[i] = rest
	}
	out[winner] = conf
	return out
}

func testConfig(t *testing.T, names ...string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.ModelsDir = dir
	cfg.Models = nil
	for _, name := range names {
		file := name + ".onnx"
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("onnx"), 0o600))
		cfg.Models = append(cfg.Models, config.ModelConfig{
			Name: name, File: file, Width: 8, Height: 6, Normalization: config.NormalizationTF,
		})
	}
	cfg.Prediction.DefaultModel = names[0]
	return cfg
}

func loaderFor(models map[string]*MockModel) Loader {
	return func(cfg config.ModelConfig, _ string) (Model, error) {
		m, ok := models[cfg.Name]
		if !ok {
			return nil, errors.New("no such artifact")
		}
		return m, nil
	}
}

func leaf() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	return img
}

// --- Tests ---

func TestLoad_RegistersInOrder(t *testing.T) {
	a, b := new(MockModel), new(MockModel)
	a.On("OutputSize").Return(NumClasses)
	b.On("OutputSize").Return(NumClasses)

	cfg := testConfig(t, "Bravo", "Alpha")
	reg, err := Load(cfg, loaderFor(map[string]*MockModel{"Alpha": a, "Bravo": b}))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bravo", "Alpha"}, reg.Names())
	require.Len(t, reg.All(), 2)
	assert.Equal(t, "Bravo", reg.All()[0].Nickname)

	all := reg.All()
	all[0] = nil
	assert.Equal(t, "Bravo", reg.All()[0].Nickname, "callers cannot mutate the registry through All")

	entry, err := reg.Get("Alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ModelsDir, "Alpha.onnx"), entry.Path)
	assert.Equal(t, 8, entry.Width)
	assert.Equal(t, 6, entry.Height)

	_, err = reg.Get("Charlie")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_MissingArtifact(t *testing.T) {
	a := new(MockModel)
	a.On("OutputSize").Return(NumClasses)
	a.On("Close").Return(nil).Once()

	cfg := testConfig(t, "Alpha", "Bravo")
	missing := filepath.Join(cfg.ModelsDir, "Bravo.onnx")
	require.NoError(t, os.Remove(missing))

	_, err := Load(cfg, loaderFor(map[string]*MockModel{"Alpha": a}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "Bravo")
	assert.Contains(t, err.Error(), missing)

	// the model that did load is released
	a.AssertExpectations(t)
}

func TestLoad_OutputSizeMismatch(t *testing.T) {
	a := new(MockModel)
	a.On("OutputSize").Return(NumClasses + 2)
	a.On("Close").Return(nil).Once()

	cfg := testConfig(t, "Alpha")
	_, err := Load(cfg, loaderFor(map[string]*MockModel{"Alpha": a}))
	assert.ErrorIs(t, err, ErrOutputMismatch)

	a.AssertExpectations(t)
}

func TestLoad_LoaderError(t *testing.T) {
	cfg := testConfig(t, "Alpha")
	_, err := Load(cfg, loaderFor(nil))
	assert.ErrorContains(t, err, "no such artifact")
}

func TestEntry_PrepareShape(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.ModelsDir = dir

	models := make(map[string]*MockModel)
	for _, mc := range cfg.Models {
		require.NoError(t, os.WriteFile(filepath.Join(dir, mc.File), nil, 0o600))
		m := new(MockModel)
		m.On("OutputSize").Return(NumClasses)
		models[mc.Name] = m
	}

	reg, err := Load(cfg, loaderFor(models))
	require.NoError(t, err)
	require.Len(t, reg.All(), 6)

	for _, e := range reg.All() {
		tensor := e.Prepare(leaf())
		assert.Equal(t, []int64{1, int64(e.Height), int64(e.Width), 3}, tensor.Shape, e.Nickname)
		assert.Len(t, tensor.Data, e.Height*e.Width*3, e.Nickname)
	}
}

func TestEntry_PrepareAppliesNormalization(t *testing.T) {
	m := new(MockModel)
	m.On("OutputSize").Return(NumClasses)

	reg, err := Load(testConfig(t, "Alpha"), loaderFor(map[string]*MockModel{"Alpha": m}))
	require.NoError(t, err)

	entry, _ := reg.Get("Alpha")
	tensor := entry.Prepare(leaf())

	// tf convention: red 0 -> -1, green 200 -> 200/127.5-1
	assert.InDelta(t, -1, tensor.Data[0], 1e-2)
	assert.InDelta(t, 200/127.5-1, tensor.Data[1], 1e-2)
}

func TestEntry_Predict(t *testing.T) {
	m := new(MockModel)
	m.On("OutputSize").Return(NumClasses)
	m.On("Run", mock.MatchedBy(func(in *preprocess.Tensor) bool {
		return len(in.Shape) == 4 && in.Shape[0] == 1 && in.Shape[3] == 3
	})).Return(scores(4, 0.8), nil)

	reg, err := Load(testConfig(t, "Alpha"), loaderFor(map[string]*MockModel{"Alpha": m}))
	require.NoError(t, err)
	entry, _ := reg.Get("Alpha")

	pred, err := entry.Predict(leaf())
	require.NoError(t, err)
	assert.Equal(t, 4, pred.Index)
	assert.Equal(t, "Downy Mildew", pred.Label)
	assert.InDelta(t, 0.8, pred.Confidence, 1e-6)

	m.AssertExpectations(t)
}

func TestEntry_PredictErrors(t *testing.T) {
	tests := []struct {
		name    string
		out     []float32
		err     error
		wantErr error
	}{
		{name: "runtime failure", err: errors.New("shape mismatch"), wantErr: ErrInference},
		{name: "empty output", out: []float32{}, wantErr: ErrInference},
		{name: "index beyond labels", out: append(scores(0, 0.1), 0.9), wantErr: ErrUnknownClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockModel)
			m.On("OutputSize").Return(NumClasses)
			m.On("Run", mock.Anything).Return(tt.out, tt.err)

			reg, err := Load(testConfig(t, "Alpha"), loaderFor(map[string]*MockModel{"Alpha": m}))
			require.NoError(t, err)
			entry, _ := reg.Get("Alpha")

			_, err = entry.Predict(leaf())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "Alpha")
		})
	}
}

func TestEntry_PredictUnknownClassIndex(t *testing.T) {
	m := new(MockModel)
	m.On("OutputSize").Return(NumClasses)
	m.On("Run", mock.Anything).Return(append(scores(0, 0.1), 0.9), nil)

	reg, err := Load(testConfig(t, "Alpha"), loaderFor(map[string]*MockModel{"Alpha": m}))
	require.NoError(t, err)
	entry, _ := reg.Get("Alpha")

	_, err = entry.Predict(leaf())
	var uce *UnknownClassError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, NumClasses, uce.Index)
	assert.Equal(t, "Alpha", uce.Model)
	assert.Equal(t, "Alpha: unknown class index 8", uce.Error())
}

func TestArgmax_FirstMaximumWins(t *testing.T) {
	idx, val, err := argmax([]float32{0.1, 0.4, 0.4, 0.1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, float32(0.4), val)
}

func TestPredictAll(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		a, b := new(MockModel), new(MockModel)
		a.On("OutputSize").Return(NumClasses)
		b.On("OutputSize").Return(NumClasses)
		a.On("Run", mock.Anything).Return(scores(0, 0.9), nil).Once()
		b.On("Run", mock.Anything).Return(scores(7, 0.3), nil).Once()

		reg, err := Load(testConfig(t, "Alpha", "Bravo"), loaderFor(map[string]*MockModel{"Alpha": a, "Bravo": b}))
		require.NoError(t, err)

		results, err := reg.PredictAll(context.Background(), leaf(), parallel)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Alternaria_Leaf_Spot", results["Alpha"].Label)
		assert.Equal(t, "ring spot", results["Bravo"].Label)
		assert.InDelta(t, 0.3, results["Bravo"].Confidence, 1e-6)

		a.AssertExpectations(t)
		b.AssertExpectations(t)
	}
}

func TestPredictAll_AllOrNothing(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		a, b := new(MockModel), new(MockModel)
		a.On("OutputSize").Return(NumClasses)
		b.On("OutputSize").Return(NumClasses)
		a.On("Run", mock.Anything).Return(nil, errors.New("boom")).Once()
		b.On("Run", mock.Anything).Return(scores(1, 0.9), nil).Maybe()

		reg, err := Load(testConfig(t, "Alpha", "Bravo"), loaderFor(map[string]*MockModel{"Alpha": a, "Bravo": b}))
		require.NoError(t, err)

		results, err := reg.PredictAll(context.Background(), leaf(), parallel)
		assert.ErrorIs(t, err, ErrInference)
		assert.Nil(t, results)
	}
}

func TestRegistry_Close(t *testing.T) {
	a, b := new(MockModel), new(MockModel)
	a.On("OutputSize").Return(NumClasses)
	b.On("OutputSize").Return(NumClasses)
	a.On("Close").Return(errors.New("close failed")).Once()
	b.On("Close").Return(nil).Once()

	reg, err := Load(testConfig(t, "Alpha", "Bravo"), loaderFor(map[string]*MockModel{"Alpha": a, "Bravo": b}))
	require.NoError(t, err)

	assert.EqualError(t, reg.Close(), "close failed")
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

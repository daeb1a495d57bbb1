package model

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/preprocess"
)

// Runtime owns the process-wide onnxruntime environment.
type Runtime struct {
	closeOnce sync.Once
}

// NewRuntime initializes onnxruntime. An empty libPath uses the library's default lookup.
func NewRuntime(libPath string) (*Runtime, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize ONNX environment")
	}
	return &Runtime{}, nil
}

// Close tears the environment down. Models must be closed first.
func (rt *Runtime) Close() error {
	var err error
	rt.closeOnce.Do(func() {
		err = ort.DestroyEnvironment()
	})
	return err
}

// Open loads an ONNX artifact whose first input is NHWC (1, height, width, 3)
// and whose first output is (1, classes). It is a Loader.
func (rt *Runtime) Open(cfg config.ModelConfig, path string) (Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect %s", path)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.Errorf("%s declares no inputs or outputs", path)
	}

	in, out := inputs[0], outputs[0]
	if err := checkInputDims(in.Dimensions, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	outputSize := int64(-1)
	if n := len(out.Dimensions); n > 0 {
		outputSize = out.Dimensions[n-1]
	}
	if outputSize <= 0 {
		return nil, errors.Wrapf(ErrOutputMismatch, "output %q has no static class dimension %v", out.Name, out.Dimensions)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Height), int64(cfg.Width), 3))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, outputSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create ONNX session")
	}

	return &onnxModel{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		outputSize:   int(outputSize),
	}, nil
}

// checkInputDims accepts dynamic (<= 0) dimensions and rejects static ones
// that disagree with the configured NHWC shape.
func checkInputDims(dims ort.Shape, width, height int) error {
	if len(dims) != 4 {
		return errors.Wrapf(ErrInputMismatch, "expected rank 4 input, got %v", dims)
	}
	want := []int64{1, int64(height), int64(width), 3}
	for i, d := range dims {
		if d > 0 && d != want[i] {
			return errors.Wrapf(ErrInputMismatch, "input %v, configured %v", dims, want)
		}
	}
	return nil
}

// onnxModel binds one session to its pre-allocated tensors. The tensors are
// shared between calls, so Run is serialized.
type onnxModel struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	outputSize   int
}

func (m *onnxModel) Run(input *preprocess.Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.inputTensor.GetData()
	if len(input.Data) != len(dst) {
		return nil, fmt.Errorf("input has %d values %v, session expects %d %v",
			len(input.Data), input.Shape, len(dst), m.inputTensor.GetShape())
	}
	copy(dst, input.Data)

	if err := m.session.Run(); err != nil {
		return nil, err
	}

	return append([]float32(nil), m.outputTensor.GetData()...), nil
}

func (m *onnxModel) OutputSize() int {
	return m.outputSize
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.inputTensor != nil {
		errs = append(errs, m.inputTensor.Destroy())
		m.inputTensor = nil
	}
	if m.outputTensor != nil {
		errs = append(errs, m.outputTensor.Destroy())
		m.outputTensor = nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

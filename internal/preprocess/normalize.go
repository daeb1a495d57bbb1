package preprocess

import (
	"github.com/pkg/errors"
)

// ErrUnknownNormalization is returned by Lookup for unregistered names.
var ErrUnknownNormalization = errors.New("unknown normalization")

// NormalizeFunc rescales an HWC RGB tensor in place.
type NormalizeFunc func(t *Tensor)

var (
	imagenetMeanRGB = [3]float32{0.485, 0.456, 0.406}
	imagenetStdRGB  = [3]float32{0.229, 0.224, 0.225}
	// caffe means are listed in BGR order
	caffeMeanBGR = [3]float32{103.939, 116.779, 123.68}
)

var normalizers = map[string]NormalizeFunc{
	"none":  Identity,
	"caffe": Caffe,
	"torch": Torch,
	"tf":    TF,
}

// Lookup returns the normalization registered under name.
func Lookup(name string) (NormalizeFunc, error) {
	fn, ok := normalizers[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNormalization, "%q", name)
	}
	return fn, nil
}

// Identity leaves [0,255] pixels untouched.
func Identity(*Tensor) {}

// Caffe flips RGB to BGR and subtracts the ImageNet channel means, no scaling.
func Caffe(t *Tensor) {
	for i := 0; i+2 < len(t.Data); i += 3 {
		r, g, b := t.Data[i], t.Data[i+1], t.Data[i+2]
		t.Data[i] = b - caffeMeanBGR[0]
		t.Data[i+1] = g - caffeMeanBGR[1]
		t.Data[i+2] = r - caffeMeanBGR[2]
	}
}

// Torch scales to [0,1] then standardizes each channel with ImageNet mean and std.
func Torch(t *Tensor) {
	for i := range t.Data {
		c := i % 3
		t.Data[i] = (t.Data[i]/255 - imagenetMeanRGB[c]) / imagenetStdRGB[c]
	}
}

// TF scales to [-1,1].
func TF(t *Tensor) {
	for i := range t.Data {
		t.Data[i] = t.Data[i]/127.5 - 1
	}
}

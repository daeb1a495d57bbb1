package config

// MaxUploadBytes is the reference upload limit (5 MB).
const MaxUploadBytes = 5 * 1024 * 1024

// MaxImagePixels caps decoded width*height, matching the decompression bomb
// limit of the reference imaging stack (2 * 89478485).
const MaxImagePixels = 2 * 89478485

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		ServiceName: "CauliCare API",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			GinMode:        "release",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		ModelsDir: "models",
		Models: []ModelConfig{
			{Name: "EfficientNet", File: "01Efficient5050.onnx", Width: 224, Height: 224, Normalization: NormalizationNone},
			{Name: "ResNet50", File: "5050resnet50.onnx", Width: 224, Height: 224, Normalization: NormalizationCaffe},
			{Name: "DenseNet201", File: "densenet5050.onnx", Width: 224, Height: 224, Normalization: NormalizationTorch},
			{Name: "DenseNet169", File: "5050densenet169.onnx", Width: 224, Height: 224, Normalization: NormalizationTorch},
			{Name: "InceptionV3", File: "inception8020.onnx", Width: 299, Height: 299, Normalization: NormalizationTF},
			// Trained with the EfficientNet pipeline, not Xception's own.
			{Name: "XceptionNet", File: "xception5050.onnx", Width: 224, Height: 224, Normalization: NormalizationNone},
		},
		Prediction: PredictionConfig{
			DefaultModel:        "EfficientNet",
			ConfidenceThreshold: 0.49,
			MaxUploadBytes:      MaxUploadBytes,
			MaxImagePixels:      MaxImagePixels,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

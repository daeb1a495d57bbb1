package handlers

type PredictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type ModelPredictResponse struct {
	Model      string  `json:"model"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type ModelInfo struct {
	Name          string `json:"name"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Normalization string `json:"normalization"`
}

type HealthResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

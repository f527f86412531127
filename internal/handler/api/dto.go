package api

import (
	"time"

	"TradeGP/internal/domain/models"
)

type PredictResponse struct {
	Success    bool              `json:"success"`
	Prediction models.Prediction `json:"prediction"`
}

type TrainResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SampleCount int    `json:"sample_count"`
}

type TrainAllResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	RunID         string            `json:"run_id"`
	ModelsTrained int               `json:"models_trained"`
	Failed        int               `json:"failed"`
	Models        map[string]string `json:"models"`
}

type UpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	Service      string    `json:"service"`
	Timestamp    time.Time `json:"timestamp"`
	ModelsLoaded int       `json:"models_loaded"`
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	xhttp "TradeGP/pkg/http"
	xlogger "TradeGP/pkg/logger"

	"github.com/labstack/echo/v4"
)

const serviceName = "gaussian-process-service"

type PredictionService interface {
	Predict(ctx context.Context, req *models.PredictRequest) (*models.Prediction, error)
	Update(ctx context.Context, req *models.UpdateRequest) (bool, error)
	Status() *models.StatusReport
	ModelsLoaded() int
}

type TrainingService interface {
	Train(ctx context.Context, ds *models.TrainingDataset) *models.JobResult
}

type BatchService interface {
	TrainFromSource(ctx context.Context, source domrepo.RecordSource, instruments []string) (*models.TrainingSummary, []*models.JobResult, error)
}

// ModelHandler serves prediction, training and status endpoints.
type ModelHandler struct {
	logger    *xlogger.Logger
	predictor PredictionService
	trainer   TrainingService
	batch     BatchService
	source    domrepo.RecordSource
	trainMW   []echo.MiddlewareFunc
	now       func() time.Time
}

// NewModelHandler wires the handler. batch and source may be nil, which
// disables /api/train-all. trainMW wraps the two training routes.
func NewModelHandler(logger *xlogger.Logger, predictor PredictionService, trainer TrainingService, batch BatchService, source domrepo.RecordSource, trainMW ...echo.MiddlewareFunc) *ModelHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ModelHandler{
		logger:    logger.Component("api"),
		predictor: predictor,
		trainer:   trainer,
		batch:     batch,
		source:    source,
		trainMW:   trainMW,
		now:       time.Now,
	}
}

func (h *ModelHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/update", h.Update)
	g.GET("/models/status", h.Status)
	g.POST("/train", h.Train, h.trainMW...)
	g.POST("/train-all", h.TrainAll, h.trainMW...)
}

func (h *ModelHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, HealthResponse{
		Status:       "healthy",
		Service:      serviceName,
		Timestamp:    h.now().UTC(),
		ModelsLoaded: h.predictor.ModelsLoaded(),
	})
}

func (h *ModelHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr.Message)
	}
	if req.Features.IsEmpty() {
		return xhttp.BadRequestResponse(c, "features is required")
	}

	pred, err := h.predictor.Predict(c.Request().Context(), req)
	if err != nil {
		if !errors.Is(err, models.ErrModelNotTrained) {
			h.logger.Error("predict failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, PredictResponse{Success: true, Prediction: *pred})
}

func (h *ModelHandler) Update(c echo.Context) error {
	req := &models.UpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr.Message)
	}

	ok, err := h.predictor.Update(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("update failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	msg := "Model updated"
	if !ok {
		msg = "Update failed"
	}
	return xhttp.SuccessResponse(c, UpdateResponse{Success: ok, Message: msg})
}

func (h *ModelHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.predictor.Status())
}

func (h *ModelHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr.Message)
	}
	key, err := models.NewModelKey(req.Instrument, req.Direction)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res := h.trainer.Train(c.Request().Context(), &models.TrainingDataset{
		Key:          key,
		Features:     req.Features,
		FeatureNames: req.FeatureNames,
		PnL:          req.PnLTargets,
		Trajectory:   req.TrajectoryTargets,
		Risk:         req.RiskTargets,
	})
	if !res.Succeeded() {
		if errors.Is(res.Err, models.ErrDataValidation) {
			return xhttp.AppErrorResponse(c, res.Err)
		}
		return xhttp.ErrorResponse(c, http.StatusInternalServerError, fmt.Sprintf("training failed at %s: %v", res.FailedAt, res.Err))
	}
	return xhttp.SuccessResponse(c, TrainResponse{
		Success:     true,
		Message:     fmt.Sprintf("Model trained for %s", key),
		SampleCount: res.SampleCount,
	})
}

func (h *ModelHandler) TrainAll(c echo.Context) error {
	if h.batch == nil || h.source == nil {
		return xhttp.ErrorResponse(c, http.StatusServiceUnavailable, "no record source configured")
	}
	req := &models.TrainAllRequest{}
	if c.Request().ContentLength != 0 {
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr.Message)
		}
	}

	summary, _, err := h.batch.TrainFromSource(c.Request().Context(), h.source, req.Instruments)
	if err != nil {
		h.logger.Error("train-all failed", xlogger.Error(err))
		return xhttp.ErrorResponse(c, http.StatusBadGateway, fmt.Sprintf("fetch training records: %v", err))
	}
	return xhttp.SuccessResponse(c, TrainAllResponse{
		Success:       summary.TotalModels > 0,
		Message:       fmt.Sprintf("Trained %d models, %d failed", summary.TotalModels, summary.Failed),
		RunID:         summary.RunID,
		ModelsTrained: summary.TotalModels,
		Failed:        summary.Failed,
		Models:        summary.Models,
	})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"TradeGP/internal/domain/models"
	xhttp "TradeGP/pkg/http"
	xlogger "TradeGP/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamWriteWait  = 10 * time.Second
	streamMaxMessage = 1 << 20
)

// StreamHandler answers predict requests over a websocket: every text frame
// is one request, every reply is the /api/predict body or {error}.
type StreamHandler struct {
	logger       *xlogger.Logger
	predictor    PredictionService
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewStreamHandler(logger *xlogger.Logger, predictor PredictionService, pingInterval time.Duration) *StreamHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &StreamHandler{
		logger:    logger.Component("ws"),
		predictor: predictor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: pingInterval,
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/predict", h.Stream)
}

func (h *StreamHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	conn.SetReadLimit(streamMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteMessage(msgType, data)
	}

	// ping loop
	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// read loop
	for {
		msgType, b, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				h.logger.Debug("websocket read ended", xlogger.Error(err))
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := write(websocket.TextMessage, h.answer(ctx, b)); err != nil {
			h.logger.Debug("websocket write failed", xlogger.Error(err))
			return nil
		}
	}
}

// answer never fails; every error becomes an {error} frame.
func (h *StreamHandler) answer(ctx context.Context, b []byte) []byte {
	reply := func(v interface{}) []byte {
		out, err := json.Marshal(v)
		if err != nil {
			out, _ = json.Marshal(xhttp.ErrorBody{Error: "encode response"})
		}
		return out
	}

	req := &models.PredictRequest{}
	if err := json.Unmarshal(b, req); err != nil {
		return reply(xhttp.ErrorBody{Error: "invalid request: " + err.Error()})
	}
	if verr := xhttp.ValidateStruct(req); verr != nil {
		return reply(xhttp.ErrorBody{Error: verr.Message})
	}
	if req.Features.IsEmpty() {
		return reply(xhttp.ErrorBody{Error: "features is required"})
	}

	pred, err := h.predictor.Predict(ctx, req)
	if err != nil {
		if !errors.Is(err, models.ErrModelNotTrained) {
			h.logger.Error("stream predict failed", xlogger.Error(err))
		}
		return reply(xhttp.ErrorBody{Error: xhttp.FromDomain(err).Message})
	}
	return reply(PredictResponse{Success: true, Prediction: *pred})
}

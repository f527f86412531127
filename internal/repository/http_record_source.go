package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	pkghttp "TradeGP/pkg/http"
	applogger "TradeGP/pkg/logger"
)

// HTTPRecordSource pulls historical trade vectors from the storage agent's
// GET {base}/api/vectors. The agent answers either {"vectors": [...]} or a
// bare array.
type HTTPRecordSource struct {
	client *pkghttp.Client
	base   string
	l      *applogger.Logger
}

var _ domrepo.RecordSource = (*HTTPRecordSource)(nil)

func NewHTTPRecordSource(base string, timeout time.Duration, l *applogger.Logger) *HTTPRecordSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &HTTPRecordSource{
		client: pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		base:   strings.TrimRight(base, "/"),
		l:      l.Component("record_source"),
	}
}

func (s *HTTPRecordSource) FetchVectors(ctx context.Context) ([]models.TradeVector, error) {
	start := time.Now()
	var raw []byte
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		URL: s.base + "/api/vectors",
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch vectors: %w", err)
	}

	vectors, err := decodeVectors(raw)
	if err != nil {
		return nil, err
	}
	s.l.Info("vectors fetched",
		applogger.Int("count", len(vectors)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return vectors, nil
}

func decodeVectors(raw []byte) ([]models.TradeVector, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []models.TradeVector
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode vectors: %w", err)
		}
		return out, nil
	}
	var env struct {
		Vectors []models.TradeVector `json:"vectors"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}
	return env.Vectors, nil
}

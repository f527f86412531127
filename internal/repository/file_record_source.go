package repository

import (
	"context"
	"fmt"
	"os"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
)

// FileRecordSource reads trade vectors from a raw export on disk, either a
// bare JSON array or an object with a "vectors" array.
type FileRecordSource struct {
	path string
}

var _ domrepo.RecordSource = (*FileRecordSource)(nil)

func NewFileRecordSource(path string) *FileRecordSource {
	return &FileRecordSource{path: path}
}

func (s *FileRecordSource) FetchVectors(ctx context.Context) ([]models.TradeVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeVectors(raw)
}

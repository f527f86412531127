package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"TradeGP/internal/domain/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: fmt.Errorf("%w: too few samples", models.ErrDataValidation), status: http.StatusBadRequest},
		{name: "not trained", err: fmt.Errorf("%w: MGC_long", models.ErrModelNotTrained), status: http.StatusNotFound},
		{name: "bundle missing", err: models.ErrBundleNotFound, status: http.StatusNotFound},
		{name: "width", err: fmt.Errorf("transform: %w", models.ErrFeatureWidthMismatch), status: http.StatusUnprocessableEntity},
		{name: "persistence", err: fmt.Errorf("%w: disk full", models.ErrPersistence), status: http.StatusInternalServerError},
		{name: "app error passes through", err: TooManyRequestsError("slow down"), status: http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FromDomain(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.status, got.Status)
		})
	}
	assert.Nil(t, FromDomain(nil))
}

type sampleRequest struct {
	Instrument string  `json:"instrument" validate:"required"`
	Direction  string  `json:"direction" validate:"required,oneof=long short"`
	Size       float64 `json:"size" default:"1"`
}

func TestReadAndValidateRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"instrument":"MGC","direction":"long"}`},
		{name: "missing instrument", body: `{"direction":"long"}`, wantErr: "instrument is required"},
		{name: "bad direction", body: `{"instrument":"MGC","direction":"up"}`, wantErr: "direction must be one of: long, short"},
		{name: "malformed", body: `{"instrument":}`, wantErr: "invalid character"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c := e.NewContext(req, httptest.NewRecorder())

			var got sampleRequest
			appErr := ReadAndValidateRequest(c, &got)
			if tt.wantErr == "" {
				require.Nil(t, appErr)
				assert.Equal(t, 1.0, got.Size)
				return
			}
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.Status)
			assert.Contains(t, appErr.Message, tt.wantErr)
		})
	}
}

func TestErrorHandlerRendersErrorBody(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/boom", func(c echo.Context) error {
		return fmt.Errorf("%w: MGC_long", models.ErrModelNotTrained)
	})

	for path, status := range map[string]int{"/boom": http.StatusNotFound, "/nowhere": http.StatusNotFound} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rec.Code, path)

		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Error, path)
	}
}

func TestClientSendAndParse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "7", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"value":42}`))
		default:
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewClient()
	var out struct {
		Value int `json:"value"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		URL:         srv.URL + "/ok",
		QueryParams: map[string][]string{"limit": {"7"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)

	err = c.SendAndParse(context.Background(), &RequestOptions{URL: srv.URL + "/down"}, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
}

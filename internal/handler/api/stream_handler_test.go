package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xhttp "TradeGP/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamPredict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	body, rows := trainBody(t, "CL", "short", 40, 13)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/train", body).Code)

	srv := httptest.NewServer(env.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predict"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	feats, err := json.Marshal(rows[0])
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"instrument":"CL","direction":"short","features":`+string(feats)+`}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var p predictBody
	require.NoError(t, json.Unmarshal(msg, &p))
	assert.True(t, p.Success)
	assert.Equal(t, "CL", p.Prediction.ModelInfo.Instrument)
	assert.Equal(t, 40, p.Prediction.ModelInfo.SampleCount)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "not json", frame: `hello`, want: "invalid request"},
		{name: "missing direction", frame: `{"instrument":"CL","features":[1]}`, want: "direction is required"},
		{name: "untrained", frame: `{"instrument":"ES","direction":"long","features":[1]}`, want: "model not trained"},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)), tt.name)
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, tt.name)
		var eb xhttp.ErrorBody
		require.NoError(t, json.Unmarshal(msg, &eb), tt.name)
		assert.Contains(t, eb.Error, tt.want, tt.name)
	}
}

func TestStreamRejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	rec := newTestEnv(t, nil).do(t, http.MethodGet, "/ws/predict", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

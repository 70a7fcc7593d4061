package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	handler := RequestLogger(base, func(r *http.Request) map[string]string {
		return map[string]string{"request_id": "req-1"}
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/properties", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	require.Equal(t, "http request", entry["message"])
	require.Equal(t, "GET", entry["method"])
	require.Equal(t, "/api/properties", entry["path"])
	require.Equal(t, "req-1", entry["request_id"])
	require.EqualValues(t, http.StatusTeapot, entry["status"])
	require.EqualValues(t, 15, entry["bytes"])
}

func TestRequestLogger_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(zerolog.New(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.EqualValues(t, http.StatusOK, entry["status"])
}

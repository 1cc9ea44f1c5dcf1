package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type meetingStub struct {
	EventID string `json:"eventId"`
	Title   string `json:"title"`
}

func TestDecodeJSONObject(t *testing.T) {
	obj, err := DecodeJSONObject[meetingStub](strings.NewReader(`{"eventId":"115123","title":"Markup"}`))
	require.NoError(t, err)
	assert.Equal(t, "115123", obj.EventID)
	assert.Equal(t, "Markup", obj.Title)
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	_, err := DecodeJSONObject[meetingStub](strings.NewReader(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode object")
}

func TestDecodeJSONObject_EmptyInput(t *testing.T) {
	_, err := DecodeJSONObject[meetingStub](strings.NewReader(""))
	require.Error(t, err)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"eventId":"1","title":"Hearing"}`) //nolint:errcheck
	}))
	defer srv.Close()

	obj, err := FetchJSON[meetingStub](context.Background(), newTestFetcher(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hearing", obj.Title)
}

func TestFetchJSON_DownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchJSON[meetingStub](context.Background(), newTestFetcher(), srv.URL)
	require.Error(t, err)
}

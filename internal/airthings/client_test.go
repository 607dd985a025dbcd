package airthings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, tokenScope, r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":3600,"token_type":"Bearer"}`))
	})
	mux.HandleFunc("/v1/devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"devices":[{"id":"2930000001","deviceType":"WAVE_PLUS","location":{"id":"l1","name":"Cabin"},"segment":{"id":"s1","name":"Kitchen","active":true}}]}`))
	})
	mux.HandleFunc("/v1/devices/2930000001/latest-samples", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"battery":85,"temp":4.5,"humidity":41,"time":1760202000,"rssi":-60}}`))
	})
	mux.HandleFunc("/v1/devices/404/latest-samples", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func newTestClient(srv *httptest.Server, secret string) *Client {
	return NewClient(Config{
		TokenURL:     srv.URL + "/token",
		BaseURL:      srv.URL + "/v1",
		ClientID:     "id",
		ClientSecret: secret,
	}, zap.NewNop())
}

func TestClient_DevicesAndSamples(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	defer srv.Close()

	c := newTestClient(srv, "secret")
	ctx := context.Background()

	devices, err := c.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "WAVE_PLUS", devices[0].DeviceType)
	assert.Equal(t, "Kitchen", devices[0].Segment.Name)

	samples, err := c.LatestSamples(ctx, "2930000001")
	require.NoError(t, err)
	assert.Equal(t, 4.5, samples["temp"])
	assert.Equal(t, float64(1760202000), samples["time"])

	// token is cached across requests
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestClient_NotFound(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	defer srv.Close()

	_, err := newTestClient(srv, "secret").LatestSamples(context.Background(), "404")
	assert.Error(t, err)
}

func TestClient_BadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	defer srv.Close()

	_, err := newTestClient(srv, "wrong").Devices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
}

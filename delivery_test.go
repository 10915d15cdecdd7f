package ddpush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverPostsJSON(t *testing.T) {
	var (
		gotMethod string
		gotType   string
		gotBody   []byte
		gotQuery  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotQuery = r.URL.Query().Get("api_key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := NewDeliveryClient(time.Second, false)
	status, err := client.Deliver(context.Background(), srv.URL+"/api/v1/series?api_key=KEY", []byte(`{"series":[]}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "KEY", gotQuery)
	assert.Equal(t, `{"series":[]}`, string(gotBody))
}

func TestDeliverStatusCodes(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{http.StatusOK, true},
		{http.StatusCreated, true},
		{http.StatusAccepted, true},
		{http.StatusNoContent, false},
		{http.StatusForbidden, false},
		{http.StatusRequestEntityTooLarge, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			status, err := NewDeliveryClient(time.Second, false).Deliver(context.Background(), srv.URL, []byte(`{}`))
			assert.Equal(t, tt.status, status)
			if tt.success {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsDeliveryError(err, DeliveryStatus))
			var de *DeliveryError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.status, de.StatusCode)
		})
	}
}

func TestDeliverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewDeliveryClient(100*time.Millisecond, false)
	start := time.Now()
	_, err := client.Deliver(context.Background(), srv.URL, []byte(`{}`))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsDeliveryError(err, DeliveryTransport), "timeouts are transport errors: %v", err)
	assert.Less(t, elapsed, 2*time.Second, "delivery must not block past the timeout")
}

func TestDeliverConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewDeliveryClient(time.Second, false).Deliver(context.Background(), url, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsDeliveryError(err, DeliveryTransport))
	assert.Contains(t, err.Error(), "error sending metrics")
}

func TestDeliverInvalidURL(t *testing.T) {
	_, err := NewDeliveryClient(time.Second, false).Deliver(context.Background(), "://missing-scheme", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsDeliveryError(err, DeliveryInit))
}

func TestDeliverTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewDeliveryClient(time.Second, false).Deliver(context.Background(), srv.URL, []byte(`{}`))
	require.Error(t, err, "self-signed certificate should be rejected when verifying")
	assert.True(t, IsDeliveryError(err, DeliveryTransport))

	status, err := NewDeliveryClient(time.Second, true).Deliver(context.Background(), srv.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

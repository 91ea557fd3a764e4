package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Timeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewClient(0).Timeout)
	assert.Equal(t, 3*time.Second, NewClient(3*time.Second).Timeout)
}

func TestMockHTTPClient_ReplaysInOrder(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewMockHTTPClient().Respond(http.StatusOK, `{"a":1}`).Fail(boom)

	req, err := http.NewRequest(http.MethodGet, "http://maps.local/info", nil)
	require.NoError(t, err)

	resp, err := m.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	_, err = m.Do(req)
	assert.ErrorIs(t, err, boom)

	_, err = m.Do(req)
	assert.ErrorIs(t, err, ErrNoResponse)

	assert.Len(t, m.Requests(), 3)
	assert.Zero(t, m.Pending())
}

func TestMockHTTPClient_CancelledContext(t *testing.T) {
	m := NewMockHTTPClient().Respond(http.StatusOK, "{}")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://maps.local/info", nil)
	require.NoError(t, err)

	_, err = m.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Pending())
}

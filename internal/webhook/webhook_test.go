package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

func TestDispatchDeliversSignedPayload(t *testing.T) {
	var gotSignature string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Synapse-Signature")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := NewRegistry()
	sub, err := registry.Register(srv.URL, "shh", []string{types.EventTaskCompleted})
	require.NoError(t, err)

	d := NewDispatcher(registry, time.Second, 3, zap.NewNop())
	d.Dispatch(types.EventTaskCompleted, map[string]any{"task_id": "abc"})

	assert.NotEmpty(t, gotSignature)
	assert.Equal(t, "task.completed", gotBody["event"])

	deliveries := registry.RecentDeliveries(sub.ID, 10)
	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].Success)
}

func TestDispatchRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := NewRegistry()
	sub, err := registry.Register(srv.URL, "", nil)
	require.NoError(t, err)

	d := NewDispatcher(registry, time.Second, 3, zap.NewNop())
	d.Dispatch(types.EventTaskCompleted, nil)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
	deliveries := registry.RecentDeliveries(sub.ID, 10)
	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].Success)
}

func TestDispatchSkipsUnsubscribedEvent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	registry := NewRegistry()
	_, err := registry.Register(srv.URL, "", []string{types.EventTaskFailed})
	require.NoError(t, err)

	d := NewDispatcher(registry, time.Second, 1, zap.NewNop())
	d.Dispatch(types.EventTaskCompleted, nil)

	assert.False(t, called)
}

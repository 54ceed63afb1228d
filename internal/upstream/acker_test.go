package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit/device-manager/internal/api"
)

func TestAckerReportsFleetCommandOutcome(t *testing.T) {
	acks := make(chan api.CommandRecord, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/devices/dev-1/commands/cmd-9/ack", r.URL.Path)

		var rec api.CommandRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		acks <- rec
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "dev-1", 5*time.Second)
	acker := NewAcker(client, 5*time.Second)

	acker.CommandFinished(api.CommandRecord{
		ID:     "cmd-9",
		Type:   api.CommandRestart,
		State:  api.CommandFailed,
		Error:  "no such container",
		Source: "fleet",
	}, 200*time.Millisecond)

	select {
	case rec := <-acks:
		assert.Equal(t, api.CommandFailed, rec.State)
		assert.Equal(t, "no such container", rec.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ack")
	}
}

func TestAckerIgnoresLocalCommands(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "dev-1", 5*time.Second)
	acker := NewAcker(client, 5*time.Second)

	acker.CommandFinished(api.CommandRecord{
		ID:     "cmd-10",
		Type:   api.CommandStop,
		State:  api.CommandSucceeded,
		Source: "api",
	}, 100*time.Millisecond)

	assert.False(t, called, "locally submitted commands must not be acked")
}

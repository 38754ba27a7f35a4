package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-a2a/synapse/types"
)

func TestHandleAgentCard_ReturnsConfiguredCard(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var card types.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "synapse-sh-0", card.ID)
}

func TestHandleStatus_ReportsControllerStatus(t *testing.T) {
	srv, controller := newTestServer(t)
	waitForIdentity(t, controller)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Status  string `json:"status"`
		Context string `json:"context"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.NotEmpty(t, status.Status)
}

func TestHandleExternalSend_UnknownAliasNotFound(t *testing.T) {
	srv, controller := newTestServer(t)
	waitForIdentity(t, controller)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"message": types.Message{Role: types.RoleUser, Parts: []types.Part{types.NewTextPart("hi")}},
	})
	resp, err := http.Post(ts.URL+"/external/agents/unknown-peer/send", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleExternalDiscover_RemembersPeerByAlias(t *testing.T) {
	srv, controller := newTestServer(t)
	waitForIdentity(t, controller)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.AgentCard{ID: "synapse-gemini-8200", Name: "gemini"})
	}))
	defer peer.Close()

	body, _ := json.Marshal(map[string]any{"alias": "gemini-buddy", "endpoint": peer.URL})
	resp, err := http.Post(ts.URL+"/external/discover", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleWebhookRegisterAndList(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"url":    "http://example.invalid/hook",
		"secret": "s3cr3t",
		"events": []string{"task.completed"},
	})
	resp, err := http.Post(ts.URL+"/webhooks", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/webhooks")
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
}

func TestHandleBoardList_DisabledBoardReportsFeatureDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/tasks/board")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

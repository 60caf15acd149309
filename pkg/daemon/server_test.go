package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/config"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

// tempSocketPath returns a socket path short enough for the Unix socket
// address limit. t.TempDir can exceed it on some systems.
func tempSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "gov")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	cfg := config.Default()
	governor, err := NewGovernor(cfg, logging.Discard("governor"))
	require.NoError(t, err)
	governor.Start()
	t.Cleanup(func() { governor.Shutdown(time.Second) })

	socketPath := tempSocketPath(t)
	server := NewServer(governor, socketPath, logging.Discard("daemon"))
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { server.Stop() })

	return server, socketPath
}

func TestServer_StatsRoundTrip(t *testing.T) {
	_, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	defer client.Close()

	stats, err := client.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Queued)
	assert.Zero(t, stats.Completed)
}

func TestServer_AdjustConcurrency(t *testing.T) {
	server, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	defer client.Close()

	require.NoError(t, client.AdjustConcurrency(10))
	assert.Equal(t, 10, server.governor.Scheduler.Limit())

	err := client.AdjustConcurrency(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon error")

	err = client.AdjustConcurrency(51)
	assert.Error(t, err)
}

func TestServer_SetBudgetAndCostStats(t *testing.T) {
	server, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	defer client.Close()

	require.NoError(t, client.SetBudget("u1", 2.00, 40.00, 80))

	server.governor.Tracker.TrackUsage("u1", "openai/gpt-4o", 1000, 1000, "chat_response")

	stats, err := client.CostStats("u1", "daily")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)
	require.NotNil(t, stats.Budget)
	assert.Greater(t, stats.Budget.DailyPercent, 0.0)
}

func TestServer_SystemStats(t *testing.T) {
	server, socketPath := startTestServer(t)

	server.governor.Tracker.TrackUsage("u1", "openai/gpt-4o", 1000, 1000, "chat_response")

	client := NewClient(socketPath)
	defer client.Close()

	stats, err := client.SystemStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)
}

func TestServer_CheckLimit(t *testing.T) {
	_, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	defer client.Close()

	decision, err := client.CheckLimit("u1", "openai/gpt-4o")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	_, err = client.CheckLimit("", "")
	assert.Error(t, err)
}

func TestServer_MultipleRequestsOnOneConnection(t *testing.T) {
	_, socketPath := startTestServer(t)

	client := NewClient(socketPath)
	defer client.Close()

	for i := 0; i < 5; i++ {
		_, err := client.Stats()
		require.NoError(t, err)
	}
}

func TestHandleMessage_Handshake(t *testing.T) {
	server, _ := startTestServer(t)

	resp := server.handleMessage(`{"type":"handshake","version":"1.0"}`)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ProtocolVersion, resp.Version)

	rejected := server.handleMessage(`{"type":"handshake","version":"9.9"}`)
	assert.Equal(t, "error", rejected.Status)
	assert.Contains(t, rejected.Error, "unsupported protocol version")
}

func TestHandleMessage_Errors(t *testing.T) {
	server, _ := startTestServer(t)

	invalid := server.handleMessage(`not json`)
	assert.Equal(t, "error", invalid.Status)

	unknown := server.handleMessage(`{"type":"bogus"}`)
	assert.Equal(t, "error", unknown.Status)
	assert.Contains(t, unknown.Error, "unknown message type")

	missing := server.handleMessage(`{"type":"cost_stats"}`)
	assert.Equal(t, "error", missing.Status)
	assert.Contains(t, missing.Error, "missing user_id")
}

func TestProtocol_RequestRoundTripsThroughJSON(t *testing.T) {
	req := Request{Type: TypeSetBudget, UserID: "u1", DailyLimit: 2.5, MonthlyLimit: 40}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded Request
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestServer_StopRemovesSocket(t *testing.T) {
	cfg := config.Default()
	governor, err := NewGovernor(cfg, logging.Discard("governor"))
	require.NoError(t, err)
	governor.Start()
	defer governor.Shutdown(time.Second)

	socketPath := tempSocketPath(t)
	server := NewServer(governor, socketPath, logging.Discard("daemon"))
	require.NoError(t, server.Start(context.Background()))

	_, err = os.Stat(socketPath)
	require.NoError(t, err)

	require.NoError(t, server.Stop())
	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err))
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	portalhttp "github.com/atinyakov/srun-login/internal/server/handler/http"
	"github.com/atinyakov/srun-login/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startPortal(t *testing.T) *httptest.Server {
	t.Helper()
	svc := service.NewPortalService("3", map[string]string{"student01": "p@ss&word"}, time.Minute)
	srv := httptest.NewServer(portalhttp.NewRouter(&portalhttp.PortalHandler{PortalService: svc}, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

// emptyStdin is a closed pipe, so the prompter is never interactive.
func emptyStdin(t *testing.T) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, emptyStdin(t), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_LoginQueryLogout(t *testing.T) {
	srv := startPortal(t)
	common := []string{"-server", srv.URL, "-redirect-host", srv.URL + "/generate_204", "-u", "student01"}

	code, out, errOut := runCLI(t, append(common, "-password", "p@ss&word", "-redirect", "login")...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Login OK")
	assert.Contains(t, out, "IP: 127.0.0.1")
	assert.NotContains(t, errOut, "p@ss&word")

	code, out, errOut = runCLI(t, append([]string{"query"}, append(common, "-o", "json")...)...)
	require.Equal(t, exitOK, code, errOut)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "ok", status["error"])
	assert.Equal(t, "student01", status["user_name"])

	code, out, _ = runCLI(t, append(common, "logout")...)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Logout OK")

	// not online any more
	code, out, _ = runCLI(t, append(common, "logout")...)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "Logout failed")
}

func TestRun_QueryOffline(t *testing.T) {
	srv := startPortal(t)
	code, out, _ := runCLI(t, "-server", srv.URL, "query")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "offline")
}

func TestRun_LoginRejected(t *testing.T) {
	srv := startPortal(t)
	code, out, errOut := runCLI(t, "-server", srv.URL, "-u", "student01", "-password", "guess", "login")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "Login failed")
	assert.Contains(t, errOut, "portal refused the request")
}

func TestRun_LoginWithoutPasswordOnPipe(t *testing.T) {
	srv := startPortal(t)
	code, _, errOut := runCLI(t, "-server", srv.URL, "-u", "student01", "login")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "missing credentials")
}

func TestRun_Usage(t *testing.T) {
	code, _, errOut := runCLI(t, "login")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "server is required")

	code, _, _ = runCLI(t, "-server", "http://10.0.0.1", "dance")
	assert.Equal(t, exitUsage, code)
}

func TestRun_HistoryDisabled(t *testing.T) {
	code, _, errOut := runCLI(t, "history")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "history store is not configured")
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Version: N/A")
}

func TestRun_UnreachableHistoryDoesNotBlock(t *testing.T) {
	srv := startPortal(t)
	// 10.255.255.1 is not routed; the DSN's own connect timeout is far longer
	dsn := "host=10.255.255.1 port=5432 user=srun dbname=srun sslmode=disable connect_timeout=60"

	start := time.Now()
	code, out, errOut := runCLI(t, "-server", srv.URL, "-timeout", "1s", "-history-dsn", dsn, "query")
	assert.Less(t, time.Since(start), 15*time.Second)
	assert.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "offline")
	assert.Contains(t, errOut, "attempt history disabled")
}

func TestRun_Help(t *testing.T) {
	code, out, _ := runCLI(t, "-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "usage: srun")
	assert.Contains(t, out, "-history-dsn")
}

func TestRun_Unreachable(t *testing.T) {
	srv := startPortal(t)
	url := srv.URL
	srv.Close()

	code, _, errOut := runCLI(t, "-server", url, "-timeout", "2s", "query")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "query_status")
}

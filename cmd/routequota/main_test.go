package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv runs every invocation against a file backend and flight log in a
// fresh directory, with no network providers.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("ROUTEQUOTA_CONFIG", "")
	t.Setenv("AVIATIONSTACK_KEY", "")
	t.Setenv("ROUTEQUOTA_STORAGE__BACKEND", "file")
	t.Setenv("ROUTEQUOTA_HISTORY__PATH", "flights.db")
	t.Setenv("ROUTEQUOTA_LOOKUP__ADSBEXCHANGE__ENABLED", "false")
	t.Setenv("ROUTEQUOTA_LOGGING__LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	setupEnv(t)

	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: routequota")

	code, _, stderr = runCLI(t, "launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "launch"`)
}

func TestRun_RecordAndStatus(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "record")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "aviationstack: 99 remaining\n", stdout)

	code, stdout, _ = runCLI(t, "record")
	require.Equal(t, 0, code)
	assert.Equal(t, "aviationstack: 98 remaining\n", stdout)

	code, stdout, _ = runCLI(t, "status")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "API QUOTA STATUS")
	assert.Contains(t, stdout, "Used:      2/100 (2.0%)")
	assert.Contains(t, stdout, "Month: "+time.Now().Format("2006-01"))
}

func TestRun_RecordUnknownAPI(t *testing.T) {
	setupEnv(t)

	code, _, stderr := runCLI(t, "record", "-api", "flightaware")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown api "flightaware"`)
}

func TestRun_Check(t *testing.T) {
	setupEnv(t)
	t.Setenv("ROUTEQUOTA_QUOTA__TOTALS__AVIATIONSTACK", "15")

	code, stdout, _ := runCLI(t, "check", "ACA857")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ALLOW")

	code, stdout, _ = runCLI(t, "check", "XYZ123")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "DENY")
	assert.Contains(t, stdout, "reserved for priority carriers")
}

func TestRun_ZeroOverridesFromEnv(t *testing.T) {
	setupEnv(t)
	t.Setenv("ROUTEQUOTA_QUOTA__TOTALS__AVIATIONSTACK", "15")
	t.Setenv("ROUTEQUOTA_QUOTA__PRIORITY_RESERVE", "0")
	t.Setenv("ROUTEQUOTA_PRIORITY__INTERNATIONAL_BONUS", "0")

	code, stdout, _ := runCLI(t, "check", "XYZ123")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ALLOW")

	code, stdout, stderr := runCLI(t, "score", "-remaining", "100", "BAW283", "400F01")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Score: 20")
	assert.NotContains(t, stdout, "INTERNATIONAL")
}

func TestRun_ScoreSampleFlights(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "score", "-remaining", "50")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.True(t, strings.HasPrefix(lines[0], "RCH345"))
	assert.Contains(t, lines[0], "CALL API")
	assert.Contains(t, lines[0], "MILITARY")
	assert.Contains(t, stdout, "Last 30 days: 0 flights, 0 with routes")
}

func TestRun_ScoreOneFlight(t *testing.T) {
	setupEnv(t)

	code, stdout, _ := runCLI(t, "score", "-remaining", "3", "UAL123", "A12345")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "UAL123")
	assert.Contains(t, stdout, "SKIP")
}

func TestRun_ResolveWithoutProviders(t *testing.T) {
	setupEnv(t)

	code, stdout, stderr := runCLI(t, "resolve", "aca857", "c05abc")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, `"callsign": "ACA857"`)
	assert.Contains(t, stdout, `"outcome": "skipped"`)

	code, _, _ = runCLI(t, "resolve")
	assert.Equal(t, 2, code)
}

func TestRun_ServeShutsDownOnCancel(t *testing.T) {
	setupEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{"serve", "-addr", "127.0.0.1:0"}, &stdout, &stderr)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

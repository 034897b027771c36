package main

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/internal/api"
	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/networks/hardhat"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*httptest.Server, *raffle.Engine, *testutil.ManualClock) {
	t.Helper()

	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := raffle.NewEngine(raffle.Config{
		Name:             "daily",
		EntranceFee:      testutil.Amount("0.1"),
		Interval:         24 * time.Hour,
		KeyHash:          testutil.TestGasLane,
		CallbackGasLimit: 500_000,
	}, testutil.NewRecordingOracle(), &testutil.RecordingSink{}, raffle.WithClock(clock))
	require.NoError(t, err)

	reg := registry.NewRaffleRegistry()
	require.NoError(t, reg.Register(e))

	srv := httptest.NewServer(api.NewServer(api.Config{CallbackToken: "tok"}, reg, hardhat.NewModule(), nil, nil, nil).Router())
	t.Cleanup(srv.Close)
	return srv, e, clock
}

func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"tychectl", "--url", url, "--token", "tok"}, args...))
	return out.String(), err
}

func TestCLI_RoundTrip(t *testing.T) {
	srv, e, clock := startServer(t)

	out, err := runCLI(t, srv.URL, "enter", "daily", testutil.PlayerA)
	require.NoError(t, err)
	assert.Contains(t, out, `"players": 1`)
	assert.True(t, e.Balance().Equal(testutil.Amount("0.1")))

	_, err = runCLI(t, srv.URL, "enter", "--amount", "0.5", "daily", testutil.PlayerB)
	require.NoError(t, err)
	assert.True(t, e.Balance().Equal(testutil.Amount("0.6")))

	out, err = runCLI(t, srv.URL, "check", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, `"upkeep_needed": false`)

	_, err = runCLI(t, srv.URL, "perform", "daily")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "412")

	clock.Advance(25 * time.Hour)
	out, err = runCLI(t, srv.URL, "perform", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, `"request_id": 1`)

	out, err = runCLI(t, srv.URL, "fulfill", "daily", "1", "3")
	require.NoError(t, err)
	assert.Contains(t, out, testutil.PlayerB)
	assert.Equal(t, uint64(2), e.Round())

	out, err = runCLI(t, srv.URL, "winners", "daily")
	require.NoError(t, err)
	assert.Contains(t, out, testutil.PlayerB)
}

func TestCLI_ArgumentErrors(t *testing.T) {
	srv, _, _ := startServer(t)

	_, err := runCLI(t, srv.URL, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: tychectl show RAFFLE")

	_, err = runCLI(t, srv.URL, "fulfill", "daily", "one", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid request id "one"`)

	_, err = runCLI(t, srv.URL, "show", "weekly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

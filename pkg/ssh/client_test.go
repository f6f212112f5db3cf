package ssh

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swappnet/swapp/simulate"
)

func startSwitch(t *testing.T, mutate func(*simulate.Config)) (*simulate.Server, *ConnectionInfo) {
	t.Helper()
	cfg := simulate.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := simulate.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, &ConnectionInfo{Host: host, Port: port, Username: cfg.Username, Password: cfg.Password}
}

func clientOptions() ExecOptions {
	opts := DefaultExecOptions()
	opts.PerCommandTimeout = 2 * time.Second
	opts.QuietWindow = 0
	opts.PollInterval = 5 * time.Millisecond
	return opts
}

func TestClientRunsCommandsAgainstSimulator(t *testing.T) {
	_, info := startSwitch(t, nil)
	client := NewClient(&Config{Timeout: 2 * time.Second})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, info))
	assert.True(t, client.IsConnected())

	stream, err := client.OpenInteractiveStream(ctx)
	require.NoError(t, err)
	prompt, err := WaitForPrompt(ctx, stream, clientOptions())
	require.NoError(t, err)
	assert.Equal(t, "SW1#", prompt)

	res, err := RunSequence(ctx, stream, []string{"terminal length 0", "show interfaces status"}, clientOptions())
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	assert.Contains(t, res.StepOutput(1), "Gi1/0/1")
	assert.Contains(t, res.StepOutput(1), "connected")
	assert.NotContains(t, res.StepOutput(1), "SW1#")

	res, err = RunSequence(ctx, stream, []string{"configure terminal", "interface Gi1/0/9", "bogus", "end"}, clientOptions())
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, []string{"% Invalid input"}, res.ErrorSignatures)
	assert.Equal(t, "SW1#", res.LastPrompt())
}

func TestClientAuthFailure(t *testing.T) {
	srv, info := startSwitch(t, nil)
	srv.FailNextLogins(10)
	client := NewClient(&Config{Timeout: 2 * time.Second})
	err := client.Connect(context.Background(), info)
	require.Error(t, err)
	assert.False(t, client.IsConnected())
}

func TestStreamReportsDrop(t *testing.T) {
	srv, info := startSwitch(t, nil)
	client := NewClient(&Config{Timeout: 2 * time.Second})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, info))
	stream, err := client.OpenInteractiveStream(ctx)
	require.NoError(t, err)
	_, err = WaitForPrompt(ctx, stream, clientOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Drop())
	require.Eventually(t, func() bool { return !stream.Writable() }, 2*time.Second, 10*time.Millisecond)

	_, err = RunSequence(ctx, stream, []string{"show clock"}, clientOptions())
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

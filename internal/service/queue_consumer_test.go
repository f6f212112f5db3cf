package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swappnet/swapp/addone/interact"
	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/pkg/ssh"
)

// fakeRunner 按调用次序返回预设结果
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	results []func() (*ssh.CommandResult, error)
}

func (f *fakeRunner) Execute(_ context.Context, commands []string) (*ssh.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), commands...))
	idx := len(f.calls) - 1
	if idx < len(f.results) {
		return f.results[idx]()
	}
	return &ssh.CommandResult{Succeeded: true}, nil
}

func ok() (*ssh.CommandResult, error) { return &ssh.CommandResult{Succeeded: true}, nil }

func rejectedResult() (*ssh.CommandResult, error) {
	return &ssh.CommandResult{Succeeded: false, ErrorSignatures: []string{"% Invalid input"}}, nil
}

func unavailable() (*ssh.CommandResult, error) {
	return nil, ErrConnectionUnavailable
}

const testDevice = "sw-test"

func newConsumer(store Store, runner CommandRunner) *QueueConsumer {
	return NewQueueConsumer(store, runner, QueueOptions{
		DeviceKey:     testDevice,
		Attempts:      5,
		RetryDelay:    time.Millisecond,
		PortSeparator: "_",
		Vocabulary:    (&interact.DefaultPlugin{}).Vocabulary(),
	})
}

func rawItem(id, port string, command interface{}) model.RawQueueItem {
	return model.RawQueueItem{ID: id, Fields: map[string]interface{}{"port": port, "command": command}}
}

func TestPollAndApplyEnableScenario(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("a1", "Gi1_0_5", "open"))
	runner := &fakeRunner{}

	n, err := newConsumer(store, runner).PollAndApply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"configure terminal", "interface Gi1/0/5", "no shutdown"}, runner.calls[0])

	pending, _ := store.ListPending(context.Background(), testDevice)
	assert.Empty(t, pending)
	logs := store.Logs(testDevice)
	require.Len(t, logs, 1)
	assert.Equal(t, model.QueueResultSuccess, logs[0].Result)
	assert.Equal(t, "Gi1/0/5", logs[0].Port)
	assert.Equal(t, model.VerbEnable, logs[0].Verb)
}

func TestPollAndApplyMalformedVerb(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("b1", "Gi1_0_5", "true"))
	store.Put(testDevice, rawItem("b2", "Gi1_0_6", true))
	store.Put(testDevice, rawItem("b3", "not-a-port!", "close"))
	store.Put(testDevice, model.RawQueueItem{ID: "b4", DecodeError: "invalid character 'n' looking for beginning of object key string"})
	runner := &fakeRunner{}

	n, err := newConsumer(store, runner).PollAndApply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n, "丢弃的条目计入确认数")
	assert.Empty(t, runner.calls, "格式错误的条目不下发命令")
	pending, _ := store.ListPending(context.Background(), testDevice)
	assert.Empty(t, pending)
	assert.Empty(t, store.Logs(testDevice))
}

func TestPollAndApplyTransientFailureThenRecovery(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("c1", "Gi1_0_7", "close"))
	runner := &fakeRunner{results: []func() (*ssh.CommandResult, error){rejectedResult, rejectedResult, ok}}

	n, err := newConsumer(store, runner).PollAndApply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, runner.calls, 3)
	assert.Equal(t, "shutdown", runner.calls[2][2])

	logs := store.Logs(testDevice)
	require.Len(t, logs, 1)
	assert.Equal(t, model.QueueResultSuccess, logs[0].Result)
	assert.Equal(t, 3, logs[0].Attempts)
}

func TestPollAndApplyExhaustionLeavesItem(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("d1", "Gi1_0_8", "enable"))
	store.Put(testDevice, rawItem("d2", "Gi1_0_9", "disable"))
	results := make([]func() (*ssh.CommandResult, error), 5)
	for i := range results {
		results[i] = rejectedResult
	}
	runner := &fakeRunner{results: results}

	n, err := newConsumer(store, runner).PollAndApply(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueItemFailed))
	assert.True(t, errors.Is(err, ErrCommandRejected))
	assert.Equal(t, 1, n, "第二个条目仍然被处理")
	assert.Len(t, runner.calls, 6)

	pending, _ := store.ListPending(context.Background(), testDevice)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].ID)

	logs := store.Logs(testDevice)
	require.Len(t, logs, 2)
	assert.Equal(t, model.QueueResultFailed, logs[0].Result)
	assert.Equal(t, 5, logs[0].Attempts)
	assert.Equal(t, model.QueueResultSuccess, logs[1].Result)
}

func TestPollAndApplyStopsOnConnectionUnavailable(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("e1", "Gi1_0_1", "open"))
	store.Put(testDevice, rawItem("e2", "Gi1_0_2", "open"))
	results := make([]func() (*ssh.CommandResult, error), 5)
	for i := range results {
		results[i] = unavailable
	}
	runner := &fakeRunner{results: results}

	n, err := newConsumer(store, runner).PollAndApply(context.Background())
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, ErrConnectionUnavailable))
	assert.Len(t, runner.calls, 5, "连接不可用时本轮不再处理后续条目")

	pending, _ := store.ListPending(context.Background(), testDevice)
	assert.Len(t, pending, 2)
}

// 确认数 = 删除数；仅成功应用或格式错误的条目被删除
func TestPollAndApplyAcknowledgementLaw(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testDevice, rawItem("f1", "Gi1_0_1", "open"))
	store.Put(testDevice, rawItem("f2", "Gi1_0_2", "bogus"))
	store.Put(testDevice, rawItem("f3", "Gi1_0_3", "shutdown"))
	results := []func() (*ssh.CommandResult, error){ok}
	for i := 0; i < 5; i++ {
		results = append(results, rejectedResult)
	}
	runner := &fakeRunner{results: results}

	before, _ := store.ListPending(context.Background(), testDevice)
	n, _ := newConsumer(store, runner).PollAndApply(context.Background())
	after, _ := store.ListPending(context.Background(), testDevice)
	assert.Equal(t, len(before)-len(after), n)
	require.Len(t, after, 1)
	assert.Equal(t, "f3", after[0].ID)
}

func TestParseVerbAndTranslate(t *testing.T) {
	for in, want := range map[string]model.Verb{
		"open": model.VerbEnable, " Enable ": model.VerbEnable, "no  shutdown": model.VerbEnable,
		"CLOSE": model.VerbDisable, "disable": model.VerbDisable, "shutdown": model.VerbDisable,
	} {
		got, err := ParseVerb(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVerb("true")
	assert.ErrorIs(t, err, ErrQueueItemMalformed)

	id, err := TranslatePortToken("GigabitEthernet1_0_5", "_")
	require.NoError(t, err)
	assert.Equal(t, "Gi1/0/5", id)
	_, err = TranslatePortToken("1_0_5", "_")
	assert.ErrorIs(t, err, ErrQueueItemMalformed)
}

func TestValidateQueueItemUndecodable(t *testing.T) {
	raw := model.RawQueueItem{ID: "e1", DecodeError: "unexpected end of JSON input"}
	_, err := ValidateQueueItem(raw, "_")
	assert.ErrorIs(t, err, ErrQueueItemMalformed)
	assert.ErrorContains(t, err, "unexpected end of JSON input")
}

func TestValidateQueueItemTimestamp(t *testing.T) {
	raw := rawItem("g1", "Fa0_1", "open")
	raw.Fields["timestamp"] = "2026-10-19T08:00:00Z"
	item, err := ValidateQueueItem(raw, "_")
	require.NoError(t, err)
	assert.Equal(t, 2026, item.SubmittedAt.Year())
	assert.Equal(t, "Fa0_1", item.PortToken)
}

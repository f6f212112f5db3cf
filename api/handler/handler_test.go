package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/internal/service"
)

type fakePorts struct {
	calls []string
	err   error
}

func (f *fakePorts) NormalizePorts(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		p, err := service.TranslatePortToken(id, "_")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", service.ErrInvalidArgument, id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePorts) SetAdminState(_ context.Context, ids []string, verb model.Verb) (*service.ActionResult, error) {
	ports, err := f.NormalizePorts(ids)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, fmt.Sprintf("%s %s", verb, strings.Join(ports, ",")))
	if f.err != nil {
		return nil, f.err
	}
	return &service.ActionResult{Ports: ports, Batches: 1}, nil
}

func (f *fakePorts) SetAccessVlan(_ context.Context, id string, vlan int) (*service.ActionResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("vlan %s %d", id, vlan))
	if f.err != nil {
		return nil, f.err
	}
	return &service.ActionResult{Ports: []string{id}, Batches: 1}, nil
}

func (f *fakePorts) SetDescription(_ context.Context, id, text string) (*service.ActionResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("desc %s %q", id, text))
	return &service.ActionResult{Ports: []string{id}, Batches: 1}, f.err
}

func (f *fakePorts) MacTable(_ context.Context, port string) ([]model.MacEntry, error) {
	f.calls = append(f.calls, "macs "+port)
	if f.err != nil {
		return nil, f.err
	}
	return []model.MacEntry{{Vlan: "10", MacAddress: "0050.56aa.0001", Type: "DYNAMIC", Port: "Gi1/0/1"}}, nil
}

func (f *fakePorts) ArpTable(context.Context) ([]model.ArpEntry, error) {
	f.calls = append(f.calls, "arp")
	if f.err != nil {
		return nil, f.err
	}
	return []model.ArpEntry{}, nil
}

type fakeStatus struct {
	snap       model.Snapshot
	at         time.Time
	history    []service.Change
	refreshErr error
}

func (f *fakeStatus) Current() model.Snapshot         { return f.snap }
func (f *fakeStatus) LastRefresh() (time.Time, error) { return f.at, nil }
func (f *fakeStatus) History(int) []service.Change    { return f.history }
func (f *fakeStatus) RefreshOnce(context.Context) ([]service.Change, error) {
	return nil, f.refreshErr
}

type fakeSession struct{ state service.SessionState }

func (f fakeSession) State() service.SessionState { return f.state }
func (f fakeSession) LastVerified() time.Time     { return time.Unix(1700000000, 0) }

func newTestStatus() *fakeStatus {
	return &fakeStatus{
		snap: model.NewSnapshot(
			model.PortRecord{Identifier: "Gi1/0/1", Status: "connected", Admin: model.AdminEnabled, Oper: model.OperUp, VlanID: 10},
			model.PortRecord{Identifier: "Gi1/0/2", Status: "disabled", Admin: model.AdminDisabled, Oper: model.OperDown, VlanID: 20},
		),
		at: time.Now(),
		history: []service.Change{{
			Identifier: "Gi1/0/1", Kind: service.ChangeChanged,
			Fields: []service.FieldChange{{Field: "status", Old: "notconnect", New: "connected"}},
		}},
	}
}

func newTestEngine(ports *fakePorts, status *fakeStatus, store service.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ph := NewPortHandler(ports, status)
	qh := NewQueueHandler(store, "sw-test", "_")
	hh := NewHealthHandler("sw-test", fakeSession{state: service.StateConnected}, status, store)
	r.GET("/health", hh.Health)
	r.GET("/ports", ph.ListPorts)
	r.GET("/ports/changes", ph.Changes)
	r.POST("/ports/refresh", ph.Refresh)
	r.POST("/ports/bulk", ph.Bulk)
	r.GET("/ports/:port", ph.GetPort)
	r.GET("/ports/:port/macs", ph.MacTable)
	r.GET("/arp", ph.ArpTable)
	r.POST("/ports/:port/:action", ph.SetState)
	r.PUT("/ports/:port/vlan", ph.SetVlan)
	r.PUT("/ports/:port/description", ph.SetDescription)
	r.POST("/queue", qh.Enqueue)
	r.GET("/queue", qh.ListPending)
	r.GET("/queue/logs", qh.Logs)
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestListPortsFilters(t *testing.T) {
	r := newTestEngine(&fakePorts{}, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodGet, "/ports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["count"])

	w = do(r, http.MethodGet, "/ports?oper=up", nil)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])

	w = do(r, http.MethodGet, "/ports?vlan=20", nil)
	data = decode(t, w)["data"].(map[string]interface{})
	ports := data["ports"].([]interface{})
	require.Len(t, ports, 1)
	assert.Equal(t, "Gi1/0/2", ports[0].(map[string]interface{})["identifier"])
}

func TestGetPortAndChanges(t *testing.T) {
	r := newTestEngine(&fakePorts{}, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodGet, "/ports/Gi1_0_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", decode(t, w)["data"].(map[string]interface{})["status"])

	w = do(r, http.MethodGet, "/ports/Gi1_0_9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/ports/changes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])
}

func TestSetStateMapsErrors(t *testing.T) {
	ports := &fakePorts{}
	r := newTestEngine(ports, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodPost, "/ports/Gi1_0_5/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"disable Gi1/0/5"}, ports.calls)

	w = do(r, http.MethodPost, "/ports/Gi1_0_5/reboot", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/ports/uplink/enable", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PARAMS", decode(t, w)["code"])

	ports.err = fmt.Errorf("acquire: %w", service.ErrConnectionUnavailable)
	w = do(r, http.MethodPost, "/ports/Gi1_0_5/enable", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ports.err = &service.CommandRejectedError{Commands: []string{"shutdown"}, Signatures: []string{"% Invalid input"}}
	w = do(r, http.MethodPost, "/ports/Gi1_0_5/enable", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "COMMAND_REJECTED", body["code"])
	assert.Equal(t, []interface{}{"% Invalid input"}, body["signatures"])

	ports.err = fmt.Errorf("step: %w", service.ErrCommandTimeout)
	w = do(r, http.MethodPost, "/ports/Gi1_0_5/enable", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestBulkExpandsRange(t *testing.T) {
	ports := &fakePorts{}
	r := newTestEngine(ports, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodPost, "/ports/bulk", BulkRequest{Range: "1-3,7", Action: "disable"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"disable Gi1/0/1,Gi1/0/2,Gi1/0/3,Gi1/0/7"}, ports.calls)

	w = do(r, http.MethodPost, "/ports/bulk", BulkRequest{Ports: []string{"Te1_1_1"}, Action: "enable"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/ports/bulk", BulkRequest{Range: "3-1", Action: "enable"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/ports/bulk", BulkRequest{Action: "enable"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/ports/bulk", BulkRequest{Range: "1-20000000", Action: "disable"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RANGE", decode(t, w)["code"])
	assert.Len(t, ports.calls, 2)
}

func TestMacAndArpTables(t *testing.T) {
	ports := &fakePorts{}
	r := newTestEngine(ports, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodGet, "/ports/Gi1_0_1/macs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])
	entry := data["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "0050.56aa.0001", entry["mac_address"])

	w = do(r, http.MethodGet, "/arp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, data["entries"])
	assert.Equal(t, []string{"macs Gi1_0_1", "arp"}, ports.calls)

	ports.err = fmt.Errorf("acquire: %w", service.ErrConnectionUnavailable)
	w = do(r, http.MethodGet, "/arp", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestVlanAndDescription(t *testing.T) {
	ports := &fakePorts{}
	r := newTestEngine(ports, newTestStatus(), service.NewMemoryStore())

	w := do(r, http.MethodPut, "/ports/Gi1_0_4/vlan", VlanRequest{Vlan: 20})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodPut, "/ports/Gi1_0_4/vlan", map[string]string{"vlan": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPut, "/ports/Gi1_0_4/description", DescriptionRequest{Description: "printer"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"vlan Gi1_0_4 20", `desc Gi1_0_4 "printer"`}, ports.calls)
}

func TestRefreshWithoutChanges(t *testing.T) {
	r := newTestEngine(&fakePorts{}, newTestStatus(), service.NewMemoryStore())
	w := do(r, http.MethodPost, "/ports/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, data["changes"])
	assert.EqualValues(t, 2, data["count"])
}

func TestRefreshFailure(t *testing.T) {
	status := newTestStatus()
	status.refreshErr = fmt.Errorf("port table: %w", service.ErrParseIncomplete)
	r := newTestEngine(&fakePorts{}, status, service.NewMemoryStore())
	w := do(r, http.MethodPost, "/ports/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "PARSE_INCOMPLETE", decode(t, w)["code"])
}

func TestQueueEndpoints(t *testing.T) {
	store := service.NewMemoryStore()
	r := newTestEngine(&fakePorts{}, newTestStatus(), store)

	w := do(r, http.MethodPost, "/queue", EnqueueRequest{Port: "Gi1_0_5", Command: "enable"})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["data"].(map[string]interface{})["id"]
	assert.NotEmpty(t, id)

	w = do(r, http.MethodPost, "/queue", EnqueueRequest{Port: "Gi1_0_5", Command: "reload"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, "/queue", EnqueueRequest{Port: "", Command: "enable"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["data"].(map[string]interface{})["count"])

	require.NoError(t, store.AppendLog(context.Background(), "sw-test", model.QueueLogEntry{ItemID: "a", Result: model.QueueResultSuccess}))
	require.NoError(t, store.AppendLog(context.Background(), "sw-test", model.QueueLogEntry{ItemID: "b", Result: model.QueueResultFailed}))
	w = do(r, http.MethodGet, "/queue/logs?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode(t, w)["data"].(map[string]interface{})["logs"].([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "b", logs[0].(map[string]interface{})["item_id"])
}

func TestHealth(t *testing.T) {
	r := newTestEngine(&fakePorts{}, newTestStatus(), service.NewMemoryStore())
	w := do(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["session"])
	assert.EqualValues(t, 2, body["ports"])
}

func TestTailLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapp.log")
	var lines []string
	for i := 0; i < 10; i++ {
		level := "info"
		if i%2 == 0 {
			level = "warning"
		}
		lines = append(lines, fmt.Sprintf(`time="x" level=%s msg="line %d" port=Gi1/0/%d`, level, i, i))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/logs", NewLogsHandler(path).TailLogs)

	w := do(r, http.MethodGet, "/logs?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)["data"].(map[string]interface{})["lines"].([]interface{})
	require.Len(t, got, 3)
	assert.Contains(t, got[2], "line 9")
	assert.Contains(t, got[0], "line 7")

	w = do(r, http.MethodGet, "/logs?level=warning&limit=100", nil)
	got = decode(t, w)["data"].(map[string]interface{})["lines"].([]interface{})
	assert.Len(t, got, 5)

	w = do(r, http.MethodGet, "/logs?port=Gi1/0/3", nil)
	got = decode(t, w)["data"].(map[string]interface{})["lines"].([]interface{})
	assert.Len(t, got, 1)

	r2 := gin.New()
	r2.GET("/logs", NewLogsHandler("").TailLogs)
	assert.Equal(t, http.StatusBadRequest, do(r2, http.MethodGet, "/logs", nil).Code)
}

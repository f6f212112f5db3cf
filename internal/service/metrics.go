package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swappnet/swapp/internal/model"
)

// Metrics 引擎指标；nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration prometheus.Histogram
	reconnects      *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	portChanges     *prometheus.CounterVec
	queueItems      *prometheus.CounterVec
}

// NewMetrics 在独立 registry 上注册计数器
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapp_command_sequences_total",
			Help: "Command sequences run on the interactive session.",
		}, []string{"result"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swapp_command_sequence_seconds",
			Help:    "Duration of command sequences.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapp_session_connects_total",
			Help: "Session connect attempts.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapp_refresh_cycles_total",
			Help: "State refresh cycles.",
		}, []string{"result"}),
		portChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapp_port_changes_total",
			Help: "Detected port changes.",
		}, []string{"kind"}),
		queueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapp_queue_items_total",
			Help: "Remote queue items processed.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.commands, m.commandDuration, m.reconnects, m.refreshes, m.portChanges, m.queueItems)
	return m
}

// Registry 供 /metrics 使用
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RegisterState 注册抓取时读取会话与快照的采集器
func (m *Metrics) RegisterState(sup *Supervisor, poller *Poller) {
	if m == nil {
		return
	}
	m.registry.MustRegister(newStateCollector(sup, poller))
}

func (m *Metrics) observeCommand(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(result).Inc()
	m.commandDuration.Observe(d.Seconds())
}

func (m *Metrics) observeConnect(ok bool) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeChanges(changes []Change) {
	if m == nil {
		return
	}
	for _, c := range changes {
		m.portChanges.WithLabelValues(string(c.Kind)).Inc()
	}
}

func (m *Metrics) observeQueueItem(result string) {
	if m == nil {
		return
	}
	m.queueItems.WithLabelValues(result).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// stateCollector 在每次抓取时读取会话状态与当前快照
type stateCollector struct {
	sup    *Supervisor
	poller *Poller

	sessionState *prometheus.Desc
	lastVerified *prometheus.Desc
	ports        *prometheus.Desc
}

func newStateCollector(sup *Supervisor, poller *Poller) *stateCollector {
	return &stateCollector{
		sup:    sup,
		poller: poller,
		sessionState: prometheus.NewDesc(
			"swapp_session_state",
			"Session state (1 for the current state).",
			[]string{"state"}, nil,
		),
		lastVerified: prometheus.NewDesc(
			"swapp_session_last_verified_timestamp_seconds",
			"Unix time the session was last verified healthy.",
			nil, nil,
		),
		ports: prometheus.NewDesc(
			"swapp_ports",
			"Ports in the current snapshot by operational state.",
			[]string{"oper"}, nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionState
	ch <- c.lastVerified
	ch <- c.ports
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.sup != nil {
		current := c.sup.State()
		for _, st := range []SessionState{StateDisconnected, StateConnecting, StateConnected, StateDegraded} {
			v := 0.0
			if st == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.sessionState, prometheus.GaugeValue, v, st.String())
		}
		if lv := c.sup.LastVerified(); !lv.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastVerified, prometheus.GaugeValue, float64(lv.Unix()))
		}
	}
	if c.poller != nil {
		counts := map[model.OperState]int{model.OperUp: 0, model.OperDown: 0, model.OperError: 0}
		for _, rec := range c.poller.Current().Records() {
			counts[rec.Oper]++
		}
		for oper, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.ports, prometheus.GaugeValue, float64(n), string(oper))
		}
	}
}

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/guncon_calibration/internal/config"
	"github.com/relabs-tech/guncon_calibration/internal/telemetry"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// SlotStatus is the latest known state and result of one gun.
type SlotStatus struct {
	Slot   int                      `json:"slot"`
	State  *telemetry.StatePayload  `json:"state,omitempty"`
	Result *telemetry.ResultPayload `json:"result,omitempty"`
}

// Snapshot is served by /api/calibration and sent to new websocket clients.
type Snapshot struct {
	Slots []SlotStatus `json:"slots"`
}

// wsMessage is pushed to every websocket client.
type wsMessage struct {
	Type     string                   `json:"type"`
	State    *telemetry.StatePayload  `json:"state,omitempty"`
	Result   *telemetry.ResultPayload `json:"result,omitempty"`
	Snapshot *Snapshot                `json:"snapshot,omitempty"`
}

// Monitor follows calibration telemetry and serves it over HTTP.
type Monitor struct {
	mu      sync.RWMutex
	states  map[int]telemetry.StatePayload
	results map[int]telemetry.ResultPayload

	// wsMu serialises writes; a websocket.Conn allows one writer at a time.
	wsMu    sync.Mutex
	clients map[*websocket.Conn]struct{}

	registry     *prometheus.Registry
	events       *prometheus.CounterVec
	passes       *prometheus.CounterVec
	degenerate   prometheus.Counter
	sinkFailures prometheus.Counter

	logger *log.Logger
}

// NewMonitor creates a monitor with its own metrics registry.
func NewMonitor(logger *log.Logger) *Monitor {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Monitor{
		states:   make(map[int]telemetry.StatePayload),
		results:  make(map[int]telemetry.ResultPayload),
		clients:  make(map[*websocket.Conn]struct{}),
		registry: reg,
		events: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guncon",
			Subsystem: "calibration",
			Name:      "events_total",
			Help:      "Wizard events received, by kind",
		}, []string{"kind"}),
		passes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guncon",
			Subsystem: "calibration",
			Name:      "passes_total",
			Help:      "Completed calibration passes, by gun slot",
		}, []string{"slot"}),
		degenerate: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "guncon",
			Subsystem: "calibration",
			Name:      "degenerate_total",
			Help:      "Passes rejected because the shots could not be solved",
		}),
		sinkFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "guncon",
			Subsystem: "calibration",
			Name:      "sink_failures_total",
			Help:      "Passes whose results could not be applied",
		}),
		logger: logger,
	}
}

// HandleState records a state payload published by the wizard.
func (m *Monitor) HandleState(payload []byte) error {
	var p telemetry.StatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode state payload: %w", err)
	}

	m.events.WithLabelValues(p.Kind).Inc()
	switch wizard.EventKind(p.Kind) {
	case wizard.EventDegenerate:
		m.degenerate.Inc()
	case wizard.EventSinkError:
		m.sinkFailures.Inc()
	}

	m.mu.Lock()
	m.states[p.Slot] = p
	m.mu.Unlock()

	m.broadcast(wsMessage{Type: "state", State: &p})
	return nil
}

// HandleResult records a result payload published on a per-slot topic.
func (m *Monitor) HandleResult(topic string, payload []byte) error {
	var p telemetry.ResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode result payload: %w", err)
	}
	slot, err := telemetry.SlotFromTopic(topic)
	if err != nil {
		return err
	}
	if slot != p.Slot {
		m.logger.Printf("web: result on %s claims slot %d, using %d", topic, p.Slot, slot)
		p.Slot = slot
	}

	m.passes.WithLabelValues(strconv.Itoa(slot)).Inc()

	m.mu.Lock()
	m.results[slot] = p
	m.mu.Unlock()

	m.broadcast(wsMessage{Type: "result", Result: &p})
	return nil
}

// Snapshot returns the latest status of every gun seen so far, by slot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int]*SlotStatus)
	for slot, st := range m.states {
		st := st
		seen[slot] = &SlotStatus{Slot: slot, State: &st}
	}
	for slot, res := range m.results {
		res := res
		if s, ok := seen[slot]; ok {
			s.Result = &res
			continue
		}
		seen[slot] = &SlotStatus{Slot: slot, Result: &res}
	}

	snap := Snapshot{Slots: make([]SlotStatus, 0, len(seen))}
	for _, s := range seen {
		snap.Slots = append(snap.Slots, *s)
	}
	sort.Slice(snap.Slots, func(i, j int) bool { return snap.Slots[i].Slot < snap.Slots[j].Slot })
	return snap
}

// Handler serves the JSON API, the websocket feed and the metrics.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()
		if len(snap.Slots) == 0 {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			m.logger.Printf("json encode error: %v", err)
		}
	})
	mux.HandleFunc("/ws", m.serveWS)
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return mux
}

func (m *Monitor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	snap := m.Snapshot()
	m.wsMu.Lock()
	m.clients[conn] = struct{}{}
	err = conn.WriteJSON(wsMessage{Type: "snapshot", Snapshot: &snap})
	m.wsMu.Unlock()
	if err != nil {
		m.logger.Printf("web: websocket write error: %v", err)
		m.drop(conn)
		return
	}
	m.logger.Printf("web: websocket client connected from %s", r.RemoteAddr)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	m.drop(conn)
	m.logger.Printf("web: websocket client %s disconnected", r.RemoteAddr)
}

func (m *Monitor) drop(conn *websocket.Conn) {
	m.wsMu.Lock()
	delete(m.clients, conn)
	m.wsMu.Unlock()
}

func (m *Monitor) broadcast(msg wsMessage) {
	m.wsMu.Lock()
	defer m.wsMu.Unlock()

	for conn := range m.clients {
		if err := conn.WriteJSON(msg); err != nil {
			m.logger.Printf("web: websocket write error: %v", err)
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

// RunWeb subscribes to the calibration topics and serves the monitor.
func RunWeb() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("%w: MQTT_BROKER is required for the web monitor", config.ErrInvalidConfiguration)
	}
	m := NewMonitor(log.Default())

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to state and per-slot result topics
	subs := map[string]mqtt.MessageHandler{
		cfg.TopicState: func(_ mqtt.Client, msg mqtt.Message) {
			if err := m.HandleState(msg.Payload()); err != nil {
				log.Printf("MQTT payload error: %v", err)
			}
		},
		strings.TrimSuffix(cfg.TopicResult, "/") + "/+": func(_ mqtt.Client, msg mqtt.Message) {
			if err := m.HandleResult(msg.Topic(), msg.Payload()); err != nil {
				log.Printf("MQTT payload error: %v", err)
			}
		},
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 1, handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("subscribed to MQTT topic %s", topic)
	}

	// 3) HTTP endpoints
	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, m.Handler())
}

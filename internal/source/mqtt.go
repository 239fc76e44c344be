package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/relvacode/iso8601"

	"fleet-monitor/oilmonitor/internal/domain"
)

type oilPayload struct {
	VehicleID   string   `json:"vehicle_id"`
	OilTempC    *float64 `json:"oil_temp_c"`
	ViscosityCP *float64 `json:"viscosity_cp"`
	OilLevelPct *float64 `json:"oil_level_pct"`
	PressureKPA *float64 `json:"pressure_kpa"`
	TS          string   `json:"ts"`
}

// MQTTSource keeps the latest unconsumed reading per vehicle from an MQTT
// subscription. Next hands each reading out once.
type MQTTSource struct {
	client *paho.Client
	topic  string
	log    *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	latest map[string]domain.Reading
}

func newMQTTSource(topic string, log *slog.Logger) *MQTTSource {
	return &MQTTSource{
		topic:  topic,
		log:    log,
		now:    time.Now,
		latest: make(map[string]domain.Reading),
	}
}

// DialMQTT connects to broker (host:port) and subscribes to topic, which may
// carry a single '+' segment standing for the vehicle id.
func DialMQTT(ctx context.Context, broker, clientID, topic string, log *slog.Logger) (*MQTTSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("failed to dial mqtt broker %s: %w", broker, err)
	}

	s := newMQTTSource(topic, log)
	s.client = paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.handle(pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			log.Error("mqtt client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			log.Warn("mqtt server disconnected", "reason_code", d.ReasonCode)
		},
	})

	if _, err := s.client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}

	if _, err := s.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("mqtt subscribe to %s failed: %w", topic, err)
	}

	return s, nil
}

func (s *MQTTSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (s *MQTTSource) Next(_ context.Context, vehicleID string) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.latest[vehicleID]
	if !ok {
		return domain.Reading{}, ErrNoReading
	}
	delete(s.latest, vehicleID)
	return r, nil
}

func (s *MQTTSource) handle(topic string, payload []byte) {
	r, err := s.parse(topic, payload)
	if err != nil {
		s.log.Warn("dropping oil telemetry", "topic", topic, "error", err)
		return
	}

	s.mu.Lock()
	s.latest[r.VehicleID] = r
	s.mu.Unlock()
}

func (s *MQTTSource) parse(topic string, payload []byte) (domain.Reading, error) {
	var p oilPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Reading{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.OilTempC == nil || p.ViscosityCP == nil || p.OilLevelPct == nil || p.PressureKPA == nil {
		return domain.Reading{}, errors.New("payload is missing a measurement")
	}

	vehicleID := p.VehicleID
	if vehicleID == "" {
		vehicleID = vehicleFromTopic(s.topic, topic)
	}
	if vehicleID == "" {
		return domain.Reading{}, errors.New("no vehicle id in payload or topic")
	}

	ts := s.now().UTC()
	if p.TS != "" {
		parsed, err := iso8601.ParseString(p.TS)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("bad ts %q: %w", p.TS, err)
		}
		ts = parsed.UTC()
	}

	return domain.Reading{
		VehicleID:   vehicleID,
		Timestamp:   ts,
		OilTempC:    *p.OilTempC,
		ViscosityCP: *p.ViscosityCP,
		OilLevelPct: *p.OilLevelPct,
		PressureKPA: *p.PressureKPA,
		RawJSON:     append([]byte(nil), payload...),
	}, nil
}

// vehicleFromTopic returns the topic segment matched by the first '+' in filter.
func vehicleFromTopic(filter, topic string) string {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, seg := range fs {
		if seg == "+" && i < len(ts) {
			return ts[i]
		}
	}
	return ""
}

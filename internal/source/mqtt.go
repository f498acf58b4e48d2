package source

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sitetrace/extension/internal/wire"
)

const (
	// TopicPose and TopicDepth carry binary wire records, one per message.
	TopicPose  = "sitetrace/pose"
	TopicDepth = "sitetrace/depth"
)

// MQTTSource subscribes to the engine's pose and depth topics on a broker.
// Paho handles reconnect and resubscribe internally.
type MQTTSource struct {
	broker   string
	clientID string
	slots    *Slots
	logger   *slog.Logger

	client mqtt.Client
}

// NewMQTTSource creates a source for the given broker, e.g. "tcp://host:1883".
func NewMQTTSource(broker, clientID string, slots *Slots, logger *slog.Logger) *MQTTSource {
	return &MQTTSource{
		broker:   broker,
		clientID: clientID,
		slots:    slots,
		logger:   logger,
	}
}

func (s *MQTTSource) Name() string { return "mqtt" }

// Start connects and subscribes to both topics.
func (s *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetAutoReconnect(true)

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.broker, token.Error())
	}
	s.logger.Info("Connected to MQTT broker", "broker", s.broker)

	poseToken := s.client.Subscribe(TopicPose, 0, func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := wire.DecodePose(msg.Payload())
		if err != nil {
			s.logger.Warn("Bad pose record", "topic", msg.Topic(), "error", err)
			return
		}
		s.slots.Pose.Put(sample)
	})
	if poseToken.Wait(); poseToken.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", TopicPose, poseToken.Error())
	}

	depthToken := s.client.Subscribe(TopicDepth, 0, func(_ mqtt.Client, msg mqtt.Message) {
		frame, err := wire.DecodeDepth(msg.Payload())
		if err != nil {
			s.logger.Warn("Bad depth record", "topic", msg.Topic(), "error", err)
			return
		}
		s.slots.Depth.Put(frame)
	})
	if depthToken.Wait(); depthToken.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", TopicDepth, depthToken.Error())
	}

	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

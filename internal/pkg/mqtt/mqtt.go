// Package mqtt publishes ATO sensors to Home Assistant over MQTT discovery.
package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
	discoveryRoot  = "homeassistant/sensor"
	manufacturer   = "Reef ATO"
	deviceModel    = "ESP32 ATO"
)

var errConnectTimeout = errors.New("unable to connect in time")

type service struct {
	client paho_mqtt.Client

	mu         sync.Mutex
	configured map[string]struct{}
}

func New(client paho_mqtt.Client) *service {
	return &service{
		client:     client,
		configured: make(map[string]struct{}),
	}
}

// NewClient builds a paho client for the configured broker.
func NewClient(cfg *config.MqttConfig) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID("ato-dashboard").
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	if token.WaitTimeout(connectTimeout) {
		return token.Error()
	}
	return errConnectTimeout
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}

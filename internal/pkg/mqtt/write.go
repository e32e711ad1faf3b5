package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/publisher"
)

type statePayload struct {
	Value string `json:"value"`
	Unit  string `json:"unit_of_measurement,omitempty"`
}

func (s *service) Write(ctx context.Context, readings model.Readings) error {
	for _, r := range readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.configureSensor(r); err != nil {
			return err
		}
		if err := s.publishState(r); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDevice announces the device itself. Sensors are announced as
// they are first written.
func (s *service) RegisterDevice(_ context.Context, device *model.Device) error {
	identifier := publisher.Identifier(*device)
	msg := model.RegisterMessage{
		Tilda:      fmt.Sprintf("%s/%s", discoveryRoot, identifier),
		Name:       device.Name,
		ID:         identifier,
		StateTopic: "~/state",
		Device:     registerDevice(device.Name, identifier, device.FirmwareVersion),
	}
	return s.publish(fmt.Sprintf("%s/%s/config", discoveryRoot, identifier), 1, true, msg)
}

func (s *service) configureSensor(r model.Reading) error {
	key := r.Identifier + "/" + r.Slug
	s.mu.Lock()
	_, done := s.configured[key]
	s.mu.Unlock()
	if done {
		return nil
	}

	name := r.Name
	if name == "" {
		name = r.Slug
	}
	msg := model.RegisterMessage{
		Tilda:         fmt.Sprintf("%s/%s/%s", discoveryRoot, r.Identifier, r.Slug),
		Name:          name,
		ID:            fmt.Sprintf("%s_%s", r.Identifier, r.Slug),
		StateTopic:    "~/state",
		ValueTemplate: "{{ value_json.value }}",
		Device:        registerDevice(r.Identifier, r.Identifier, ""),
	}
	if !r.Text {
		msg.Unit = r.Unit
	}
	if err := s.publish(fmt.Sprintf("%s/%s/%s/config", discoveryRoot, r.Identifier, r.Slug), 1, true, msg); err != nil {
		return err
	}
	s.mu.Lock()
	s.configured[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *service) publishState(r model.Reading) error {
	payload := statePayload{Value: r.Value}
	if !r.Text {
		payload.Unit = r.Unit
	}
	return s.publish(stateTopic(r.Identifier, r.Slug), 0, false, payload)
}

func (s *service) publish(topic string, qos byte, retained bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := s.client.Publish(topic, qos, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

func stateTopic(identifier, slug string) string {
	return fmt.Sprintf("%s/%s/%s/state", discoveryRoot, identifier, slug)
}

func registerDevice(name, identifier, firmware string) model.RegisterDevice {
	return model.RegisterDevice{
		Name:         name,
		Identifiers:  []string{identifier},
		Model:        deviceModel,
		Manufacturer: manufacturer,
		SwVersion:    firmware,
	}
}

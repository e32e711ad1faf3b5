package model

import "time"

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

type RegisterMessage struct {
	Tilda         string         `json:"~"`
	Name          string         `json:"name"`
	ID            string         `json:"unique_id"`
	StateTopic    string         `json:"state_topic"`
	ValueTemplate string         `json:"value_template,omitempty"`
	Unit          string         `json:"unit_of_measurement,omitempty"`
	Device        RegisterDevice `json:"device"`
}

type Device struct {
	Name            string
	FirmwareVersion string
}

// Sensor is one published reading derived from a snapshot.
type Sensor struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
	Text  bool   `json:"text"`
}

// Reading is a sensor value as written by a publisher.
type Reading struct {
	Timestamp  time.Time `json:"timestamp"`
	Identifier string    `json:"identifier"`
	Slug       string    `json:"slug"`
	Name       string    `json:"-"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit_of_measurement"`
	Text       bool      `json:"-"`
}

type Readings []Reading

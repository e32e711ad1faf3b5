package model

type ConnectionState string

func (cs ConnectionState) String() string {
	return string(cs)
}

const (
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
	ConnError    ConnectionState = "error"
)

// ErrorCode is the fault class reported by the controller.
type ErrorCode int

const (
	ErrorNone          ErrorCode = 0
	ErrorEmergencyHigh ErrorCode = 1
	ErrorPumpTimeout   ErrorCode = 3
	ErrorTempSensor    ErrorCode = 4
)

var errorMessages = map[ErrorCode]string{
	ErrorEmergencyHigh: "Emergency High Water Level",
	ErrorPumpTimeout:   "Pump Timeout",
	ErrorTempSensor:    "Temperature Sensor Error",
}

// Message returns the user facing text for the code.
func (ec ErrorCode) Message() string {
	if msg, ok := errorMessages[ec]; ok {
		return msg
	}
	return "Unknown Error"
}

// Recoverable is true only for a pump timeout, the one fault a user may clear.
func (ec ErrorCode) Recoverable() bool {
	return ec == ErrorPumpTimeout
}

// MaintenanceCommand pauses (true) or resumes (false) automatic pumping.
type MaintenanceCommand struct {
	Maintenance bool `json:"maintenance"`
}

// ResetErrorCommand clears a pump timeout.
type ResetErrorCommand struct {
	ResetError bool `json:"reset_error"`
}

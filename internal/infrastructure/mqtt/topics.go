package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT namespace.
const (
	// TopicPrefix is the base for all Hearth topics.
	TopicPrefix = "hearth"

	// TopicPrefixThermostat is the base for per-thermostat topics.
	TopicPrefixThermostat = "hearth/thermostat"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics. Using these helpers
// keeps topic naming consistent between the publisher and subscribers.
//
//	topics := mqtt.Topics{}
//	dispatchTopic := topics.ThermostatDispatch("main-floor")
//	// Returns: "hearth/thermostat/main-floor/dispatch"
type Topics struct{}

// ThermostatDispatch returns the topic for per-cycle dispatch results.
//
// Example: hearth/thermostat/main-floor/dispatch
func (Topics) ThermostatDispatch(slug string) string {
	return fmt.Sprintf("%s/%s/dispatch", TopicPrefixThermostat, slug)
}

// ThermostatState returns the topic for retained thermostat state snapshots.
//
// Example: hearth/thermostat/main-floor/state
func (Topics) ThermostatState(slug string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixThermostat, slug)
}

// ThermostatAdjust returns the topic commanding an immediate dispatch
// cycle for one thermostat.
//
// Example: hearth/thermostat/main-floor/adjust
func (Topics) ThermostatAdjust(slug string) string {
	return fmt.Sprintf("%s/%s/adjust", TopicPrefixThermostat, slug)
}

// AllThermostatAdjusts returns a pattern matching every adjust command topic.
//
// Pattern: hearth/thermostat/+/adjust
func (Topics) AllThermostatAdjusts() string {
	return fmt.Sprintf("%s/+/adjust", TopicPrefixThermostat)
}

// SystemStatus returns the service status topic used for the online
// announcement and the Last Will message.
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllThermostatDispatches returns a pattern matching every dispatch topic.
//
// Pattern: hearth/thermostat/+/dispatch
func (Topics) AllThermostatDispatches() string {
	return fmt.Sprintf("%s/+/dispatch", TopicPrefixThermostat)
}

// AllThermostatStates returns a pattern matching every state topic.
//
// Pattern: hearth/thermostat/+/state
func (Topics) AllThermostatStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixThermostat)
}

// AllTopics returns a pattern matching all Hearth topics.
// Use with caution, this receives all traffic.
//
// Pattern: hearth/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

package supla

import "errors"

// Domain errors for the supla package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, supla.ErrChannelNotFound) {
//	    // handle missing channel case
//	}
var (
	// ErrUpstreamUnavailable is returned when the remote device API cannot
	// be reached or returns an unusable payload. Callers recover per
	// affected device or room; it never aborts a whole dispatch cycle.
	ErrUpstreamUnavailable = errors.New("supla: upstream unavailable")

	// ErrChannelNotFound is returned when a referenced channel id is not
	// present in the device list visible to the current credentials.
	ErrChannelNotFound = errors.New("supla: channel not found")

	// ErrNoTemperature is returned when a channel's state carries no
	// temperature reading.
	ErrNoTemperature = errors.New("supla: channel reports no temperature")

	// ErrMissingCredentials is returned when a user has no usable API
	// credentials configured.
	ErrMissingCredentials = errors.New("supla: missing API credentials")
)

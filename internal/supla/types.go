package supla

// Device represents one I/O device registered with the remote API.
// A device exposes one or more channels (relays, thermometers, gates).
type Device struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Connected bool      `json:"connected"`
	Channels  []Channel `json:"channels"`
}

// Channel is a single addressable endpoint on a device: a relay output,
// a thermometer input, a roller shutter and so on.
type Channel struct {
	ID       int    `json:"id"`
	DeviceID int    `json:"iodeviceId"`
	Caption  string `json:"caption"`
	Type     string `json:"type"`
	Function string `json:"function"`
}

// ChannelState is the reported runtime state of one channel.
//
// On is nil for channels that have no stable on/off signal (shutters,
// impulse relays); such channels can only be driven through the
// unpredictable-toggle fallback chain.
type ChannelState struct {
	Connected   bool     `json:"connected"`
	On          *bool    `json:"on,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// ChannelWithState pairs a channel's static description with its live
// state, as returned to API clients in thermostat snapshots.
type ChannelWithState struct {
	Channel
	State       *ChannelState `json:"state,omitempty"`
	Unreachable bool          `json:"unreachable,omitempty"`
}

// Credentials hold a ready-to-use access token for the remote API.
// Token refresh is handled elsewhere; this package only consumes them.
type Credentials struct {
	ServerURL   string
	AccessToken string
}

// Valid reports whether the credentials can be used at all.
func (c Credentials) Valid() bool {
	return c.ServerURL != "" && c.AccessToken != ""
}

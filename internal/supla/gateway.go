package supla

import (
	"context"
	"fmt"
	"sync"
)

// Logger is the logging interface the gateway needs.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Gateway executes read and write operations against the device API on
// behalf of one dispatch cycle.
//
// The device list is fetched at most once per Gateway and cached, so a
// cycle that touches many channels costs a single listing call. Writes
// degrade through the unpredictable-toggle fallback chain: direct
// primitive first, then open/close, then plain open. A failed-but-
// completed chain is reported as false, never as an error; only
// transport failures propagate.
//
// In read-only mode every write reports success without contacting the
// remote API. Reads are unaffected.
type Gateway struct {
	client   Client
	readOnly bool
	logger   Logger

	mu      sync.Mutex
	devices []Device
	listed  bool
}

// NewGateway creates a gateway over the given client.
//
// Parameters:
//   - client: Transport to the remote device API
//   - readOnly: When true, writes are successful no-ops
//   - logger: Logger instance (nil for silent operation)
func NewGateway(client Client, readOnly bool, logger Logger) *Gateway {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Gateway{
		client:   client,
		readOnly: readOnly,
		logger:   logger,
	}
}

// ReadOnly reports whether the gateway is in read-only mode.
func (g *Gateway) ReadOnly() bool {
	return g.readOnly
}

// Devices returns the device list, fetching it on first use and serving
// the cached copy afterwards. The cache lives for the gateway's lifetime,
// which is one dispatch cycle.
func (g *Gateway) Devices(ctx context.Context) ([]Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listed {
		return g.devices, nil
	}

	devices, err := g.client.IODevices(ctx)
	if err != nil {
		return nil, err
	}
	g.devices = devices
	g.listed = true
	return devices, nil
}

// Channel looks a channel up in the cached device list.
// Returns ErrChannelNotFound if no visible device exposes the id.
func (g *Gateway) Channel(ctx context.Context, channelID int) (*Channel, error) {
	devices, err := g.Devices(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		for j := range devices[i].Channels {
			if devices[i].Channels[j].ID == channelID {
				return &devices[i].Channels[j], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: channel %d", ErrChannelNotFound, channelID)
}

// ChannelState reads the live state of one channel.
// The channel must be present in the device list.
func (g *Gateway) ChannelState(ctx context.Context, channelID int) (*ChannelState, error) {
	if _, err := g.Channel(ctx, channelID); err != nil {
		return nil, err
	}
	return g.client.State(ctx, channelID)
}

// ChannelWithState returns a channel's description merged with its live
// state, for snapshot responses.
func (g *Gateway) ChannelWithState(ctx context.Context, channelID int) (*ChannelWithState, error) {
	channel, err := g.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	state, err := g.client.State(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &ChannelWithState{Channel: *channel, State: state}, nil
}

// Temperature reads a thermometer channel's temperature.
// Returns ErrNoTemperature if the channel state has no reading.
func (g *Gateway) Temperature(ctx context.Context, channelID int) (float64, error) {
	state, err := g.ChannelState(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if state.Temperature == nil {
		return 0, fmt.Errorf("%w: channel %d", ErrNoTemperature, channelID)
	}
	return *state.Temperature, nil
}

// TurnOn switches a channel on, falling back to the unpredictable-toggle
// chain when the direct primitive is rejected.
//
// Returns:
//   - bool: true if any step of the chain was accepted
//   - error: transport failures only
func (g *Gateway) TurnOn(ctx context.Context, channelID int) (bool, error) {
	if g.readOnly {
		g.logger.Debug("read-only mode: skipping turn on", "channel_id", channelID)
		return true, nil
	}

	ok, err := g.client.TurnOn(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return g.toggleUnpredictable(ctx, channelID)
}

// TurnOff switches a channel off, falling back to the unpredictable-toggle
// chain when the direct primitive is rejected.
func (g *Gateway) TurnOff(ctx context.Context, channelID int) (bool, error) {
	if g.readOnly {
		g.logger.Debug("read-only mode: skipping turn off", "channel_id", channelID)
		return true, nil
	}

	ok, err := g.client.TurnOff(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return g.toggleUnpredictable(ctx, channelID)
}

// Toggle flips a channel's power state.
//
// If the channel reports a definite on/off state the call is delegated to
// TurnOff or TurnOn accordingly. Channels with no stable on/off signal
// (shutters, impulse relays) go straight to the fallback chain.
func (g *Gateway) Toggle(ctx context.Context, channelID int) (bool, error) {
	state, err := g.ChannelState(ctx, channelID)
	if err != nil {
		return false, err
	}

	if state.On == nil {
		if g.readOnly {
			g.logger.Debug("read-only mode: skipping toggle", "channel_id", channelID)
			return true, nil
		}
		return g.toggleUnpredictable(ctx, channelID)
	}
	if *state.On {
		return g.TurnOff(ctx, channelID)
	}
	return g.TurnOn(ctx, channelID)
}

// toggleUnpredictable runs the fallback actuation sequence for channels
// whose power state cannot be set directly: open/close first, then plain
// open. Success of either step counts as success.
func (g *Gateway) toggleUnpredictable(ctx context.Context, channelID int) (bool, error) {
	ok, err := g.client.OpenClose(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ok {
		g.logger.Debug("channel actuated via open/close fallback", "channel_id", channelID)
		return true, nil
	}

	ok, err = g.client.Open(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ok {
		g.logger.Debug("channel actuated via open fallback", "channel_id", channelID)
	} else {
		g.logger.Warn("channel rejected entire fallback chain", "channel_id", channelID)
	}
	return ok, nil
}

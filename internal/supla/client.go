package supla

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiVersion is the remote API version path segment.
const apiVersion = "v2.3.0"

// Client is the transport interface to the remote device API.
//
// The boolean returned by action calls is the device's definite
// accept/reject signal: false means the channel refused or does not
// support the primitive. Transport problems (connection failure,
// malformed payload, 5xx) are returned as errors wrapping
// ErrUpstreamUnavailable instead.
type Client interface {
	// IODevices returns all devices (with channels) visible to the credentials.
	IODevices(ctx context.Context) ([]Device, error)

	// State returns the live state of one channel.
	State(ctx context.Context, channelID int) (*ChannelState, error)

	// TurnOn asks the channel to switch on.
	TurnOn(ctx context.Context, channelID int) (bool, error)

	// TurnOff asks the channel to switch off.
	TurnOff(ctx context.Context, channelID int) (bool, error)

	// OpenClose triggers the open/close primitive (gates, shutters).
	OpenClose(ctx context.Context, channelID int) (bool, error)

	// Open triggers the plain open primitive.
	Open(ctx context.Context, channelID int) (bool, error)
}

// HTTPClient implements Client against a SUPLA-compatible cloud server
// using bearer token credentials.
type HTTPClient struct {
	rest *resty.Client
}

// NewHTTPClient creates a client for the given credentials.
//
// Parameters:
//   - creds: Ready-to-use credentials (server address, access token)
//   - timeout: Per-request timeout; every call is bounded by it
//
// Returns:
//   - *HTTPClient: Configured client
//   - error: ErrMissingCredentials if the credentials are unusable
func NewHTTPClient(creds Credentials, timeout time.Duration) (*HTTPClient, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}

	rest := resty.New().
		SetBaseURL(creds.ServerURL).
		SetTimeout(timeout).
		SetAuthToken(creds.AccessToken).
		SetHeader("Accept", "application/json")

	return &HTTPClient{rest: rest}, nil
}

// IODevices returns all devices visible to the credentials, channels included.
func (c *HTTPClient) IODevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("include", "channels").
		SetResult(&devices).
		Get(fmt.Sprintf("/api/%s/iodevices", apiVersion))
	if err != nil {
		return nil, fmt.Errorf("%w: listing devices: %w", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: listing devices: status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}
	return devices, nil
}

// State returns the live state of one channel.
func (c *HTTPClient) State(ctx context.Context, channelID int) (*ChannelState, error) {
	var state ChannelState
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&state).
		Get(fmt.Sprintf("/api/%s/channels/%d/state", apiVersion, channelID))
	if err != nil {
		return nil, fmt.Errorf("%w: reading channel %d: %w", ErrUpstreamUnavailable, channelID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return &state, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: channel %d", ErrChannelNotFound, channelID)
	default:
		return nil, fmt.Errorf("%w: reading channel %d: status %d", ErrUpstreamUnavailable, channelID, resp.StatusCode())
	}
}

// TurnOn asks the channel to switch on.
func (c *HTTPClient) TurnOn(ctx context.Context, channelID int) (bool, error) {
	return c.action(ctx, channelID, "TURN_ON")
}

// TurnOff asks the channel to switch off.
func (c *HTTPClient) TurnOff(ctx context.Context, channelID int) (bool, error) {
	return c.action(ctx, channelID, "TURN_OFF")
}

// OpenClose triggers the open/close primitive.
func (c *HTTPClient) OpenClose(ctx context.Context, channelID int) (bool, error) {
	return c.action(ctx, channelID, "OPEN_CLOSE")
}

// Open triggers the plain open primitive.
func (c *HTTPClient) Open(ctx context.Context, channelID int) (bool, error) {
	return c.action(ctx, channelID, "OPEN")
}

// action issues one named action against a channel.
//
// Status mapping:
//   - 2xx           -> accepted (true, nil)
//   - 4xx           -> definite rejection (false, nil); the channel exists
//     but refused or does not support the primitive
//   - 5xx/transport -> ErrUpstreamUnavailable
func (c *HTTPClient) action(ctx context.Context, channelID int, action string) (bool, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"action": action}).
		Patch(fmt.Sprintf("/api/%s/channels/%d", apiVersion, channelID))
	if err != nil {
		return false, fmt.Errorf("%w: %s channel %d: %w", ErrUpstreamUnavailable, action, channelID, err)
	}

	code := resp.StatusCode()
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return true, nil
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s channel %d: status %d", ErrUpstreamUnavailable, action, channelID, code)
	}
}

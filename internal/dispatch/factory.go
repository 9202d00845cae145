package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthctl/hearth-core/internal/auth"
	"github.com/hearthctl/hearth-core/internal/supla"
)

// SuplaGatewayFactory builds per-cycle gateways from each user's stored
// remote API credentials.
type SuplaGatewayFactory struct {
	users    auth.UserRepository
	baseURL  string
	timeout  time.Duration
	readOnly bool
	logger   Logger
}

// NewSuplaGatewayFactory creates a gateway factory.
//
// Parameters:
//   - users: Source of per-user API credentials
//   - baseURL: When non-empty, overrides the server address stored per user
//   - timeout: Per-request timeout for device API calls
//   - readOnly: Suppresses all device writes (staging safety)
//   - logger: Logger instance (nil for silent operation)
func NewSuplaGatewayFactory(users auth.UserRepository, baseURL string, timeout time.Duration, readOnly bool, logger Logger) *SuplaGatewayFactory {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SuplaGatewayFactory{
		users:    users,
		baseURL:  baseURL,
		timeout:  timeout,
		readOnly: readOnly,
		logger:   logger,
	}
}

// GatewayFor returns a fresh gateway bound to the user's credentials. Each
// call builds a new gateway so its device-list cache never outlives one
// cycle.
func (f *SuplaGatewayFactory) GatewayFor(ctx context.Context, userID string) (Gateway, error) {
	user, err := f.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %q: %w", userID, err)
	}
	if !user.HasCredentials() {
		return nil, fmt.Errorf("user %q: %w", userID, supla.ErrMissingCredentials)
	}

	creds := supla.Credentials{
		ServerURL:   user.APIServerURL,
		AccessToken: user.APIToken,
	}
	if f.baseURL != "" {
		creds.ServerURL = f.baseURL
	}

	client, err := supla.NewHTTPClient(creds, f.timeout)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", userID, err)
	}

	return supla.NewGateway(client, f.readOnly, f.logger), nil
}

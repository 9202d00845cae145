package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// defaultCommandTimeout bounds a broker-triggered dispatch cycle.
const defaultCommandTimeout = 30 * time.Second

// CommandConsumer runs dispatch cycles in response to broker commands.
// External integrations publish an empty message to
// hearth/thermostat/<slug>/adjust to request an immediate recalculation,
// the same cycle a PATCH without a body triggers over HTTP.
type CommandConsumer struct {
	repo    thermostat.Repository
	engine  *Engine
	timeout time.Duration
	logger  Logger
}

// NewCommandConsumer creates a consumer. A nil logger discards output;
// a non-positive timeout falls back to the default.
func NewCommandConsumer(repo thermostat.Repository, engine *Engine, timeout time.Duration, logger Logger) *CommandConsumer {
	if logger == nil {
		logger = noopLogger{}
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandConsumer{
		repo:    repo,
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

// HandleAdjust dispatches the thermostat named by the topic's slug
// segment (hearth/thermostat/<slug>/adjust). Unknown slugs are logged
// and dropped so a stale integration cannot error-loop the broker
// wrapper; malformed topics are reported back to it.
func (c *CommandConsumer) HandleAdjust(topic string, _ []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return fmt.Errorf("malformed adjust topic %q", topic)
	}
	slug := parts[len(parts)-2]

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	t, err := c.repo.GetBySlug(ctx, slug)
	if err != nil {
		c.logger.Warn("adjust command for unknown thermostat", "slug", slug, "error", err)
		return nil
	}

	result, err := c.engine.Adjust(ctx, t.ID)
	if err != nil {
		c.logger.Error("broker-triggered dispatch failed", "thermostat_id", t.ID, "error", err)
		return err
	}

	c.logger.Info("broker-triggered dispatch complete",
		"thermostat_id", t.ID,
		"cycle_id", result.CycleID,
		"commands", result.Commands,
	)
	return nil
}

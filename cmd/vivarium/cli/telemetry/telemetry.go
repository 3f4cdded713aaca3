// Package telemetry sends anonymous usage events when the user opts in.
//
// The distinct id is a hashed machine id, never a user or project
// identifier. Telemetry failures are invisible: a nil or failed client
// degrades every call to a no-op.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
)

const apiKey = "phc_vivarium_public_write_only"

// Client captures usage events. The zero value and nil are safe no-ops.
type Client struct {
	ph posthog.Client
	id string
}

// InstanceID returns a stable, app-scoped machine identifier. Falls back to
// "unknown" when the machine id cannot be read.
func InstanceID() string {
	id, err := machineid.ProtectedID("vivarium")
	if err != nil {
		return "unknown"
	}
	return id
}

// New returns a telemetry client, or nil when disabled.
func New(ctx context.Context, enabled bool) *Client {
	if !enabled {
		return nil
	}
	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: "https://eu.i.posthog.com"})
	if err != nil {
		logging.Debug(logging.WithComponent(ctx, "telemetry"), "telemetry disabled",
			slog.Any("error", err),
		)
		return nil
	}
	return &Client{ph: ph, id: InstanceID()}
}

// Capture records a usage event. Safe on a nil client.
func (c *Client) Capture(event string, props map[string]any) {
	if c == nil || c.ph == nil {
		return
	}
	p := posthog.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	_ = c.ph.Enqueue(posthog.Capture{
		DistinctId: c.id,
		Event:      event,
		Properties: p,
	})
}

// Close flushes pending events. Safe on a nil client.
func (c *Client) Close() {
	if c == nil || c.ph == nil {
		return
	}
	_ = c.ph.Close()
}

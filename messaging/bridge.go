package messaging

import (
	"context"
	"strings"

	"cart-autofill/internal/types"
)

// Bridge relays envelopes posted by the hosting page to the background.
// Only envelopes from the page's own origins tagged as coming from the app pass.
type Bridge struct {
	bus     *Bus
	origins map[string]bool
	logger  types.Logger
}

// NewBridge creates a bridge accepting envelopes from origins
func NewBridge(bus *Bus, origins []string, logger types.Logger) *Bridge {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[normalizeOrigin(origin)] = true
	}
	return &Bridge{
		bus:     bus,
		origins: allowed,
		logger:  logger,
	}
}

// Accepts reports whether an envelope from origin would be relayed
func (br *Bridge) Accepts(origin string, env Envelope) bool {
	return br.origins[normalizeOrigin(origin)] &&
		env.Source == SourceApp &&
		env.Action == ActionStartAutomation
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// Receive relays env to the background and returns the tagged response.
// The second value is false when the envelope was ignored.
func (br *Bridge) Receive(ctx context.Context, origin string, env Envelope) (Envelope, bool) {
	if !br.Accepts(origin, env) {
		br.logger.Debugf("Bridge ignoring %q from %q (source %q)", env.Action, origin, env.Source)
		return Envelope{}, false
	}

	reply, err := br.bus.Request(ctx, AddrBackground, Envelope{
		ID:     env.ID,
		Action: ActionStartAutomation,
		Site:   env.Site,
		Items:  env.Items,
	})
	if err != nil {
		br.logger.Errorf("Bridge request failed: %v", err)
		reply = ErrorEnvelope(types.MsgConnectFailed)
	}

	if env.ID != "" {
		reply.ID = env.ID
	}
	reply.Source = SourceExtension
	reply.Action = ActionAutomationResponse
	return reply, true
}

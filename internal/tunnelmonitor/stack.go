package tunnelmonitor

import (
	"context"

	"go.nymvpn.network/core/internal/model"
)

// Stack is the per-tunnel-type bring-up contract (spec §4.7's "Mixnet",
// "WireGuard TunTun" and "WireGuard Netstack" bring-up procedures). Up
// returns once the interface can carry traffic; Run blocks pumping
// packets until ctx is cancelled or the stack fails; Down releases every
// OS resource Up acquired.
type Stack interface {
	Up(ctx context.Context) (model.ConnectionData, string, error)
	Run(ctx context.Context) error
	Down(ctx context.Context) error
}

// Params bundles one connection attempt's inputs (spec §4.7
// TunnelParameters).
type Params struct {
	TunnelType  model.TunnelType
	Gateways    model.SelectedGateways
	TicketType  model.TicketType
	MTU         int
	RetryAttempt int
}

// defaultMTU matches spec §4.7: 1500 on desktop, 1280 on mobile. This
// core targets desktop builds; mobile front-ends override Params.MTU.
const defaultMTU = 1500

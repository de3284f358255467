// Package quota decides whether a conversation turn may use generation
// capacity. Guided turns cost nothing; final turns draw from a per-caller
// credit bucket unless the caller is entitled.
package quota

import (
	"context"
	"log/slog"
)

// Decision is the outcome of Admit. Remaining is -1 when unknown.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Backend holds the credit balances.
type Backend interface {
	// Take withdraws cost credits for key if the balance covers it and
	// reports the balance left.
	Take(ctx context.Context, key string, cost int) (remaining int, ok bool, err error)
}

type Gate struct {
	backend Backend
	logger  *slog.Logger
}

func NewGate(backend Backend, logger *slog.Logger) *Gate {
	return &Gate{backend: backend, logger: logger}
}

// Admit never blocks usage because of a backend failure: errors are
// logged and the turn is allowed.
func (g *Gate) Admit(ctx context.Context, key string, cost int, entitled bool) Decision {
	if cost < 0 {
		cost = 0
	}
	remaining, ok, err := g.backend.Take(ctx, key, cost)
	if err != nil {
		g.logger.Warn("quota backend unavailable, admitting turn", "caller", key, "cost", cost, "error", err)
		return Decision{Allowed: true, Remaining: -1}
	}
	if !ok {
		if entitled {
			g.logger.Debug("entitled caller over free quota", "caller", key, "remaining", remaining)
			return Decision{Allowed: true, Remaining: remaining}
		}
		g.logger.Info("quota exhausted", "caller", key, "cost", cost, "remaining", remaining)
		return Decision{Allowed: false, Remaining: remaining}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

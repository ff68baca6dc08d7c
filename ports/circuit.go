package ports

import (
	"context"

	"goqem/domain/circuit"
)

// CircuitSource resolves a circuit reference (a file path for the TOML adapter) to a validated description
type CircuitSource interface {
	Load(ctx context.Context, ref string) (*circuit.Description, error)
}

package ports

import (
	"context"

	"goqem/domain/core"
	"goqem/domain/mitigation"
)

// DatasetInfo describes a stored dataset without loading it
type DatasetInfo struct {
	Ref         string
	Kind        string
	Size        int
	Fingerprint core.Hash
	CreatedAt   core.Timestamp
}

// TripleRepository stores training triple datasets under a reference
type TripleRepository interface {
	SaveTriples(ctx context.Context, ref string, triples []mitigation.Triple) error
	LoadTriples(ctx context.Context, ref string) ([]mitigation.Triple, error)
}

// SurrogateSampleRepository stores surrogate pretraining datasets under a reference
type SurrogateSampleRepository interface {
	SaveSamples(ctx context.Context, ref string, samples []mitigation.SurrogateSample) error
	LoadSamples(ctx context.Context, ref string) ([]mitigation.SurrogateSample, error)
}

// DatasetCatalog lists what a store holds
type DatasetCatalog interface {
	Describe(ctx context.Context, ref string) (*DatasetInfo, error)
}

// DatasetStore is a backend holding both dataset kinds
type DatasetStore interface {
	TripleRepository
	SurrogateSampleRepository
	DatasetCatalog
}

package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/internal/errors"
	"goqem/ports"
)

const (
	KindTriples          = "triples"
	KindSurrogateSamples = "surrogate_samples"
)

// header precedes the payload so Describe can read it alone
type header struct {
	Version     int
	Kind        string
	Size        int
	Fingerprint core.Hash
	CreatedAt   core.Timestamp
}

// DatasetStore implements ports.TripleRepository, ports.SurrogateSampleRepository and
// ports.DatasetCatalog over gob files in one directory
type DatasetStore struct {
	dir string
}

// NewDatasetStore resolves relative refs against dir ("" means the working directory)
func NewDatasetStore(dir string) *DatasetStore {
	return &DatasetStore{dir: dir}
}

// Path returns the file a reference maps to
func (s *DatasetStore) Path(ref string) string {
	path := ref
	if filepath.Ext(path) == "" {
		path += ".gob"
	}
	if s.dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	return path
}

// SaveTriples writes a triple dataset, replacing any previous file
func (s *DatasetStore) SaveTriples(ctx context.Context, ref string, triples []mitigation.Triple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, t := range triples {
		if t.Observable == nil {
			return errors.InvalidInput(fmt.Sprintf("triple %d has no observable", i))
		}
	}
	h := header{
		Version:     formatVersion,
		Kind:        KindTriples,
		Size:        len(triples),
		Fingerprint: mitigation.Fingerprint(triples),
		CreatedAt:   core.Now(),
	}
	path := s.Path(ref)
	if err := writeGob(path, h, triples); err != nil {
		return err
	}
	log.Info().Str("component", "storage").Str("path", path).Int("size", h.Size).Str("fingerprint", h.Fingerprint.Short()).Msg("triples saved")
	return nil
}

// LoadTriples reads a triple dataset
func (s *DatasetStore) LoadTriples(ctx context.Context, ref string) ([]mitigation.Triple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var h header
	var triples []mitigation.Triple
	path := s.Path(ref)
	if err := readGob(path, errDatasetMissing, &h, &triples); err != nil {
		return nil, err
	}
	if err := checkHeader(h, KindTriples, len(triples)); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", path)
	}
	return triples, nil
}

// SaveSamples writes a surrogate dataset, replacing any previous file
func (s *DatasetStore) SaveSamples(ctx context.Context, ref string, samples []mitigation.SurrogateSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, smp := range samples {
		if smp.Observable == nil {
			return errors.InvalidInput(fmt.Sprintf("sample %d has no observable", i))
		}
	}
	h := header{
		Version:     formatVersion,
		Kind:        KindSurrogateSamples,
		Size:        len(samples),
		Fingerprint: mitigation.FingerprintSamples(samples),
		CreatedAt:   core.Now(),
	}
	path := s.Path(ref)
	if err := writeGob(path, h, samples); err != nil {
		return err
	}
	log.Info().Str("component", "storage").Str("path", path).Int("size", h.Size).Msg("surrogate samples saved")
	return nil
}

// LoadSamples reads a surrogate dataset
func (s *DatasetStore) LoadSamples(ctx context.Context, ref string) ([]mitigation.SurrogateSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var h header
	var samples []mitigation.SurrogateSample
	path := s.Path(ref)
	if err := readGob(path, errDatasetMissing, &h, &samples); err != nil {
		return nil, err
	}
	if err := checkHeader(h, KindSurrogateSamples, len(samples)); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", path)
	}
	return samples, nil
}

// Describe reads only the header of a dataset file
func (s *DatasetStore) Describe(ctx context.Context, ref string) (*ports.DatasetInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var h header
	path := s.Path(ref)
	if err := readGob(path, errDatasetMissing, &h); err != nil {
		return nil, err
	}
	return &ports.DatasetInfo{
		Ref:         path,
		Kind:        h.Kind,
		Size:        h.Size,
		Fingerprint: h.Fingerprint,
		CreatedAt:   h.CreatedAt,
	}, nil
}

func checkHeader(h header, kind string, size int) error {
	if h.Version != formatVersion {
		return errors.StorageError(nil, fmt.Sprintf("unsupported format version %d", h.Version))
	}
	if h.Kind != kind {
		return errors.InvalidInput(fmt.Sprintf("file holds %s, expected %s", h.Kind, kind))
	}
	if h.Size != size {
		return errors.StorageError(nil, fmt.Sprintf("header declares %d records, file holds %d", h.Size, size))
	}
	return nil
}

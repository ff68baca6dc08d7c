// Package circuitfile loads circuit descriptions from TOML files.
package circuitfile

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"goqem/domain/circuit"
	"goqem/domain/core"
	"goqem/internal/errors"
)

// Loader implements ports.CircuitSource over a directory of .toml files
type Loader struct {
	baseDir string
}

// NewLoader resolves relative references against baseDir ("" means the working directory)
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Load reads and validates the description at ref. A missing ".toml" suffix is added.
func (l *Loader) Load(ctx context.Context, ref string) (*circuit.Description, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.resolve(ref)

	var desc circuit.Description
	meta, err := toml.DecodeFile(path, &desc)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.SimulationFailed(core.ErrNotFound, fmt.Sprintf("circuit description %s does not exist", path))
		}
		return nil, errors.SimulationFailed(err, fmt.Sprintf("failed to decode circuit description %s", path))
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.SimulationFailed(nil, fmt.Sprintf("circuit description %s has unknown keys: %s", path, strings.Join(keys, ", ")))
	}
	if !meta.IsDefined("name") {
		desc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := desc.Validate(); err != nil {
		return nil, errors.SimulationFailed(err, "invalid circuit description")
	}

	log.Debug().
		Str("component", "circuitfile").
		Str("path", path).
		Int("qubits", desc.NumQubits).
		Int("operations", len(desc.Operations)).
		Int("mitigation_gates", desc.CountMitigationGates()).
		Msg("circuit loaded")
	return &desc, nil
}

// Decode parses a description from TOML text, for inline circuits and tests
func Decode(data string) (*circuit.Description, error) {
	var desc circuit.Description
	if _, err := toml.Decode(data, &desc); err != nil {
		return nil, errors.SimulationFailed(err, "failed to decode circuit description")
	}
	if err := desc.Validate(); err != nil {
		return nil, errors.SimulationFailed(err, "invalid circuit description")
	}
	return &desc, nil
}

// Write stores a description as TOML
func Write(path string, desc *circuit.Description) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.StorageError(err, "failed to create circuit file")
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(desc); err != nil {
		return errors.StorageError(err, "failed to encode circuit description")
	}
	return nil
}

func (l *Loader) resolve(ref string) string {
	path := ref
	if filepath.Ext(path) == "" {
		path += ".toml"
	}
	if l.baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.baseDir, path)
	}
	return path
}

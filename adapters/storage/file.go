// Package storage persists datasets, checkpoints and run metrics as local files.
// Datasets and checkpoints are gob encoded, which keeps every float64 and complex128 bit-exact.
package storage

import (
	"bufio"
	"encoding/gob"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"goqem/domain/core"
	"goqem/internal/errors"
)

// formatVersion is bumped whenever an on-disk layout changes
const formatVersion = 1

// writeAtomic writes to a temp file in the target directory and renames it into place,
// so readers never observe a partial file
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to create directory %s", dir))
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to create temp file for %s", path))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return errors.StorageError(err, fmt.Sprintf("failed to encode %s", path))
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return errors.StorageError(err, fmt.Sprintf("failed to write %s", path))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.StorageError(err, fmt.Sprintf("failed to sync %s", path))
	}
	if err := tmp.Close(); err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to close %s", path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to move %s into place", path))
	}
	return nil
}

// readGob decodes consecutive gob values from path into dst
func readGob(path string, missing error, dst ...interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.WithCode(errors.CodeNotFound, fmt.Errorf("%s: %w", path, missing))
		}
		return errors.StorageError(err, fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()
	dec := gob.NewDecoder(bufio.NewReader(f))
	for _, d := range dst {
		if err := dec.Decode(d); err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to decode %s", path))
		}
	}
	return nil
}

func writeGob(path string, values ...interface{}) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := gob.NewEncoder(w)
		for _, v := range values {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	})
}

var errDatasetMissing = core.ErrDatasetNotFound

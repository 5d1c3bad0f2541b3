// Package fileutil writes the files subpass keeps under its home directory:
// configuration, the encrypted signing key and unlock caches. Every write
// goes through a temp file so a crash never leaves a torn file behind.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// Options controls WriteFile.
type Options struct {
	Perm    os.FileMode // Mode of the written file, 0o600 when zero
	DirPerm os.FileMode // Mode for missing parent directories, 0o700 when zero

	// NoReplace fails with an error matching os.ErrExist instead of
	// replacing an existing file. The check and the write are one step.
	NoReplace bool
}

// WriteFile writes data to path through a synced temp file in the same
// directory, creating the directory when needed.
func WriteFile(path string, data []byte, opts Options) error {
	if path == "" {
		return ErrEmptyPath
	}
	if opts.Perm == 0 {
		opts.Perm = 0o600
	}
	if opts.DirPerm == 0 {
		opts.DirPerm = 0o700
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, opts.DirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmpPath, err := writeTemp(dir, filepath.Base(path), data, opts.Perm)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if opts.NoReplace {
		// Link refuses to overwrite, unlike Rename.
		if err = os.Link(tmpPath, path); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s: %w", path, os.ErrExist)
			}
			return fmt.Errorf("linking temp file: %w", err)
		}
	} else if err = os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path comes from configuration
		return fmt.Errorf("renaming temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// WriteAtomic replaces path with data, keeping the previous contents on failure.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteFile(path, data, Options{Perm: perm})
}

// Remove deletes path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeTemp(dir, base string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()

	err = func() error {
		if _, werr := f.Write(data); werr != nil {
			return fmt.Errorf("writing temp file: %w", werr)
		}
		if cerr := f.Chmod(perm); cerr != nil {
			return fmt.Errorf("setting temp file permissions: %w", cerr)
		}
		if serr := f.Sync(); serr != nil {
			return fmt.Errorf("syncing temp file: %w", serr)
		}
		return nil
	}()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// syncDir makes a rename durable where the platform allows it.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from the target path
		_ = d.Sync()
		_ = d.Close()
	}
}

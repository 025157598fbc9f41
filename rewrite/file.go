package rewrite

import (
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Bytes rewrites an encoded class file and returns the re-encoded result.
// A class without duplicates is returned byte for byte as given.
func Bytes(data []byte, opts ...Option) ([]byte, *Report, error) {
	cls, err := classfile.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	report, err := Class(cls, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cls.Encode(), report, nil
}

// ReadFile reads the class file at path. Anything other than an existing
// regular file is reported as ErrFileNotFound.
func ReadFile(path string) ([]byte, fs.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, errors.FileNotFound(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, errors.FileNotFound(path, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, errors.IO("read", path, err)
	}
	return data, info.Mode().Perm(), nil
}

// WriteFile replaces path with data. The data is written to a temporary
// file in the same directory and renamed over path, so a failed write
// leaves the original in place.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.IO("create temporary file for", path, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return errors.IO("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		return errors.IO("sync", tmp.Name(), err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.IO("chmod", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.IO("close", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.IO("rename", path, err)
	}

	Logger().Debug("file written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// File rewrites the class file at path in place. The file is written back
// even when no method changed.
func File(path string, opts ...Option) (*Report, error) {
	data, perm, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, report, err := Bytes(data, opts...)
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	if err := WriteFile(path, out, perm); err != nil {
		return nil, err
	}
	return report, nil
}

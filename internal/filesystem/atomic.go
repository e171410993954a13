package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it into place. Readers see either the old content or the new
// content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	start := time.Now()
	err := writeAtomic(path, perm, func(f *os.File) (int64, error) {
		n, err := f.Write(data)
		return int64(n), err
	})
	observe().ObserveOperation("write", time.Since(start).Seconds(), err)
	return err
}

// WriteReaderAtomic streams r into path with the same guarantees as
// WriteFileAtomic and returns the number of bytes written.
func WriteReaderAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	start := time.Now()
	var written int64
	err := writeAtomic(path, perm, func(f *os.File) (int64, error) {
		n, err := io.Copy(f, r)
		written = n
		return n, err
	})
	observe().ObserveOperation("write", time.Since(start).Seconds(), err)
	return written, err
}

func writeAtomic(path string, perm os.FileMode, fill func(*os.File) (int64, error)) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure path.
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := fill(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// MoveFile moves src to dst. A plain rename is used when both paths are on
// the same device; otherwise the bytes are copied atomically and src is
// removed afterwards.
func MoveFile(src, dst string) error {
	start := time.Now()
	err := os.Rename(src, dst)
	if err == nil {
		syncDir(filepath.Dir(dst))
		observe().ObserveOperation("rename", time.Since(start).Seconds(), nil)
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		observe().ObserveOperation("rename", time.Since(start).Seconds(), err)
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		observe().ObserveOperation("rename", time.Since(start).Seconds(), err)
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		observe().ObserveOperation("rename", time.Since(start).Seconds(), err)
		return err
	}

	if _, err := WriteReaderAtomic(dst, in, info.Mode().Perm()); err != nil {
		observe().ObserveOperation("rename", time.Since(start).Seconds(), err)
		return err
	}
	_ = os.Remove(src)
	observe().ObserveOperation("rename", time.Since(start).Seconds(), nil)
	return nil
}

// syncDir flushes directory metadata so a completed rename survives a crash.
// Failures are ignored; not every filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

package fsatomic

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WriteFile atomically writes data to path. It writes to path+".tmp",
// fsyncs, renames into place, then fsyncs the parent directory. On any
// error the temp file is removed and path is left untouched.
// If perm is 0, 0644 is used.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// umask may have narrowed the mode at create time
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return FsyncDir(filepath.Dir(path))
}

// Readable reports whether path exists and the caller may read it.
func Readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// MkdirExist creates dir with perm and treats an existing entry as
// success. The parent must already exist.
func MkdirExist(dir string, perm fs.FileMode) error {
	if err := os.Mkdir(dir, perm); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

// FsyncDir calls Sync on a directory to persist metadata.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

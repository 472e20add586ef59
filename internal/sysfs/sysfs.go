// Package sysfs пишет значения в узлы sysfs.
package sysfs

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FS задает корень дерева sysfs; пустой Root означает "/".
type FS struct {
	Root string
}

// Path возвращает полный путь узла.
func (fs FS) Path(p string) string {
	if fs.Root == "" {
		return p
	}
	return filepath.Join(fs.Root, p)
}

// WriteString пишет строку в узел.
func (fs FS) WriteString(p, value string) error {
	return fs.Write(p, []byte(value))
}

// Write открывает узел, пишет data одним вызовом и закрывает его.
// Неполная запись возвращает EAGAIN: вызов можно повторить.
func (fs FS) Write(p string, data []byte) error {
	full := fs.Path(p)
	fd, err := retry(func() (int, error) {
		return unix.Open(full, unix.O_WRONLY|unix.O_TRUNC|unix.O_CLOEXEC, 0)
	})
	if err != nil {
		return &os.PathError{Op: "open", Path: full, Err: err}
	}
	defer unix.Close(fd)

	n, err := retry(func() (int, error) { return unix.Write(fd, data) })
	if err != nil {
		return &os.PathError{Op: "write", Path: full, Err: err}
	}
	if n != len(data) {
		return &os.PathError{Op: "write", Path: full, Err: unix.EAGAIN}
	}
	return nil
}

// Writable сообщает, доступен ли узел на чтение и запись.
func (fs FS) Writable(p string) error {
	full := fs.Path(p)
	if err := unix.Access(full, unix.R_OK|unix.W_OK); err != nil {
		return &os.PathError{Op: "access", Path: full, Err: err}
	}
	return nil
}

// retry повторяет системный вызов, прерванный сигналом.
func retry(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

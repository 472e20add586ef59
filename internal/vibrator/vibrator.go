// Package vibrator управляет вибромотором, подключенным как LED-устройство.
package vibrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"time"

	"hwshim/internal/sysfs"
)

// DefaultLEDDir используется, если каталог устройства не задан.
const DefaultLEDDir = "/sys/class/leds/vibrator"

var ErrInvalidDuration = errors.New("vibration duration out of range")

type Vibrator struct {
	fs     sysfs.FS
	dir    string
	logger *slog.Logger
}

// New создает драйвер; пустой dir означает DefaultLEDDir.
func New(fs sysfs.FS, dir string, logger *slog.Logger) *Vibrator {
	if dir == "" {
		dir = DefaultLEDDir
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Vibrator{fs: fs, dir: dir, logger: logger}
}

// On включает вибрацию на timeout. Останавливается на первой ошибке записи.
func (v *Vibrator) On(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msec := timeout.Milliseconds()
	if timeout < 0 || msec > math.MaxUint32 {
		return fmt.Errorf("%s: %w", timeout, ErrInvalidDuration)
	}
	ms := uint32(msec)
	if err := v.write("state", "1"); err != nil {
		return err
	}
	if err := v.write("duration", strconv.FormatUint(uint64(ms), 10)+"\n"); err != nil {
		return err
	}
	if err := v.write("activate", "1"); err != nil {
		return err
	}
	v.logger.Debug("vibrator on", "duration_ms", ms)
	return nil
}

// Off останавливает вибрацию.
func (v *Vibrator) Off(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.write("activate", "0"); err != nil {
		return err
	}
	v.logger.Debug("vibrator off")
	return nil
}

// write передает значение вместе с завершающим нулем, как того ждет драйвер LED.
func (v *Vibrator) write(file, value string) error {
	if err := v.fs.Write(path.Join(v.dir, file), append([]byte(value), 0)); err != nil {
		v.logger.Error("vibrator write failed", "file", file, "error", err)
		return fmt.Errorf("vibrator %s: %w", file, err)
	}
	return nil
}

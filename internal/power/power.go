// Package power управляет wake lock'ами, состоянием экрана и режимами памяти EBI-1 через sysfs.
package power

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"hwshim/internal/sysfs"
)

const (
	PartialWakeLock = 1
	FullWakeLock    = 2
)

const (
	autoOffTimeoutPath = "/sys/android_power/auto_off_timeout"
	memoryDir          = "/sys/devices/system/memory"
)

var (
	ErrUnsupportedLock = errors.New("unsupported wake lock type")
	ErrNotHeld         = errors.New("wake lock not held")
	ErrUnavailable     = errors.New("power control nodes unavailable")
	ErrEmptyID         = errors.New("wake lock id is empty")
)

// pathSet описывает один из вариантов раскладки узлов ядра.
type pathSet struct {
	name       string
	wakeLock   string
	wakeUnlock string
	state      string
	onState    string
	offState   string
}

var (
	newPaths = pathSet{
		name:       "new",
		wakeLock:   "/sys/power/wake_lock",
		wakeUnlock: "/sys/power/wake_unlock",
		state:      "/sys/power/state",
		onState:    "on",
		offState:   "mem",
	}
	oldPaths = pathSet{
		name:       "old",
		wakeLock:   "/sys/android_power/acquire_partial_wake_lock",
		wakeUnlock: "/sys/android_power/release_wake_lock",
		state:      "/sys/android_power/request_state",
		onState:    "wake",
		offState:   "standby",
	}
)

// Properties отдает системные свойства.
type Properties interface {
	Get(key, def string) string
}

// Status описывает снимок состояния контроллера.
type Status struct {
	PathSet   string   `json:"path_set"`
	Error     string   `json:"error,omitempty"`
	WakeLocks []string `json:"wake_locks"`
	LowPower  bool     `json:"ebi1_low_power"`
	ScreenOn  *bool    `json:"screen_on,omitempty"`
}

// Controller управляет узлами питания; безопасен для конкурентного вызова.
type Controller struct {
	fs     sysfs.FS
	props  Properties
	logger *slog.Logger

	once    sync.Once
	paths   pathSet
	initErr error

	mu       sync.Mutex
	held     map[string]struct{}
	lowPower bool
	screenOn *bool
}

// New создает контроллер. Выбор раскладки узлов откладывается до первого обращения.
func New(fs sysfs.FS, props Properties, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		fs:     fs,
		props:  props,
		logger: logger,
		held:   make(map[string]struct{}),
	}
}

func (c *Controller) init() error {
	c.once.Do(func() {
		if err := c.probe(newPaths); err == nil {
			c.paths = newPaths
			return
		}
		c.paths = oldPaths
		if err := c.probe(oldPaths); err != nil {
			c.initErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
			c.logger.Error("power nodes unavailable", "error", err)
			return
		}
		c.logger.Info("using legacy android_power nodes")
	})
	return c.initErr
}

func (c *Controller) probe(ps pathSet) error {
	for _, p := range []string{ps.wakeLock, ps.wakeUnlock, ps.state} {
		if err := c.fs.Writable(p); err != nil {
			return err
		}
	}
	return nil
}

// AcquireWakeLock захватывает частичный wake lock. Повторный захват того же id ничего не делает.
func (c *Controller) AcquireWakeLock(ctx context.Context, lock int, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.init(); err != nil {
		return err
	}
	if lock != PartialWakeLock {
		return fmt.Errorf("lock type %d: %w", lock, ErrUnsupportedLock)
	}
	if id == "" {
		return ErrEmptyID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[id]; ok {
		return nil
	}
	if err := c.fs.WriteString(c.paths.wakeLock, id); err != nil {
		return fmt.Errorf("acquire %s: %w", id, err)
	}
	c.held[id] = struct{}{}
	c.logger.Debug("wake lock acquired", "id", id)
	return nil
}

// ReleaseWakeLock освобождает ранее захваченный wake lock.
func (c *Controller) ReleaseWakeLock(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.init(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[id]; !ok {
		return fmt.Errorf("release %s: %w", id, ErrNotHeld)
	}
	if err := c.fs.WriteString(c.paths.wakeUnlock, id); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	delete(c.held, id)
	c.logger.Debug("wake lock released", "id", id)
	return nil
}

// HeldWakeLocks возвращает отсортированный список удерживаемых id.
func (c *Controller) HeldWakeLocks() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// SetScreenState включает или гасит экран.
func (c *Controller) SetScreenState(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.init(); err != nil {
		return err
	}
	state := c.paths.offState
	if on {
		state = c.paths.onState
	}
	c.logger.Info("set screen state", "on", on, "state", state)
	if err := c.fs.WriteString(c.paths.state, state); err != nil {
		c.logger.Error("failed setting screen state", "state", state, "error", err)
		return fmt.Errorf("screen %s: %w", state, err)
	}
	c.mu.Lock()
	c.screenOn = &on
	c.mu.Unlock()
	return nil
}

// SetLastUserActivityTimeout задает задержку автоотключения после последней активности.
func (c *Controller) SetLastUserActivityTimeout(ctx context.Context, delay int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Узел принимает int; старшие биты отбрасываются.
	value := strconv.FormatInt(int64(int32(delay)), 10)
	if err := c.fs.WriteString(autoOffTimeoutPath, value); err != nil {
		return fmt.Errorf("auto off timeout: %w", err)
	}
	return nil
}

// WriteToLowPower переводит нестабильную память в self-refresh.
func (c *Controller) WriteToLowPower(ctx context.Context, startAddr string) error {
	return c.writeMemory(ctx, "low_power", startAddr)
}

// WriteToActive возвращает нестабильную память в активный режим.
func (c *Controller) WriteToActive(ctx context.Context, startAddr string) error {
	return c.writeMemory(ctx, "active", startAddr)
}

func (c *Controller) writeMemory(ctx context.Context, node, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := memoryDir + "/" + node
	if err := c.fs.WriteString(path, value); err != nil {
		c.logger.Error("memory node write failed", "node", node, "value", value, "error", err)
		return fmt.Errorf("write %s: %w", node, err)
	}
	c.logger.Warn("unstable memory state changed", "node", node, "value", value)
	return nil
}

// SetEBI1SelfRefresh переключает EBI-1 между self-refresh и активным режимом.
func (c *Controller) SetEBI1SelfRefresh(ctx context.Context, on bool) error {
	start := c.prop("ro.dev.dmm.sr.start_address", "0")
	if on {
		return c.WriteToLowPower(ctx, start)
	}
	return c.WriteToActive(ctx, start)
}

// SetEBI1DeepPowerDown переводит EBI-1 в deep power down или возвращает память.
// Если узел состояния блока не открывается, возвращается ошибка без изменений.
// Если запись offline не прошла, память уходит в self-refresh,
// и обратный переход выполняется через active.
func (c *Controller) SetEBI1DeepPowerDown(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := c.prop("ro.dev.dmm.dpd.start_address", "0")
	block := c.prop("ro.dev.dmm.dpd.block", "0")
	statePath := memoryDir + "/memory" + block + "/state"

	c.mu.Lock()
	defer c.mu.Unlock()

	if on {
		if err := c.fs.WriteString(statePath, "offline"); err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && pathErr.Op == "open" {
				return fmt.Errorf("memory block %s: %w", block, err)
			}
			c.logger.Error("logical hotremove failed", "block", block, "error", err)
			if err := c.writeMemory(ctx, "low_power", start); err != nil {
				return err
			}
			c.lowPower = true
			return nil
		}
		if err := c.fs.WriteString(memoryDir+"/remove", start); err != nil {
			return fmt.Errorf("physical hotremove: %w", err)
		}
		c.logger.Warn("unstable memory removed", "start", start, "block", block)
		return nil
	}

	if c.lowPower {
		if err := c.writeMemory(ctx, "active", start); err != nil {
			return err
		}
		c.lowPower = false
		return nil
	}
	if err := c.fs.WriteString(memoryDir+"/probe", start); err != nil {
		return fmt.Errorf("physical hotplug: %w", err)
	}
	if err := c.fs.WriteString(statePath, "online"); err != nil {
		return fmt.Errorf("logical hotplug: %w", err)
	}
	c.logger.Warn("unstable memory restored", "start", start, "block", block)
	return nil
}

// Status возвращает снимок состояния.
func (c *Controller) Status() Status {
	err := c.init()
	st := Status{PathSet: c.paths.name, WakeLocks: c.HeldWakeLocks()}
	if err != nil {
		st.PathSet = ""
		st.Error = err.Error()
	}
	c.mu.Lock()
	st.LowPower = c.lowPower
	if c.screenOn != nil {
		v := *c.screenOn
		st.ScreenOn = &v
	}
	c.mu.Unlock()
	return st
}

func (c *Controller) prop(key, def string) string {
	if c.props == nil {
		return def
	}
	return c.props.Get(key, def)
}

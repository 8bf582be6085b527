package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/metrics"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// SnapshotStore persists capability snapshots between processes.
type SnapshotStore interface {
	Load(key string) (*types.Capabilities, error)
	Save(key string, caps *types.Capabilities) error
}

// Context holds the capabilities of this host for the lifetime of a process.
// Refresh is serialized; Snapshot may be called concurrently with it and
// always sees a complete snapshot.
type Context struct {
	host    *HostProber
	runtime Runtime
	store   SnapshotStore
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time

	refreshMu sync.Mutex

	mu     sync.RWMutex
	snap   *types.Capabilities
	closed bool
}

// Option configures a Context.
type Option func(*Context)

// WithRuntime sets the accelerator runtime. The default is NoRuntime.
func WithRuntime(rt Runtime) Option {
	return func(c *Context) { c.runtime = rt }
}

// WithHostProber replaces the default host prober.
func WithHostProber(p *HostProber) Option {
	return func(c *Context) { c.host = p }
}

// WithStore persists snapshots in store. Init reuses a stored snapshot that
// is younger than ttl; a zero ttl only writes.
func WithStore(store SnapshotStore, ttl time.Duration) Option {
	return func(c *Context) {
		c.store = store
		c.ttl = ttl
	}
}

// WithMetrics records probe outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

// WithLogger replaces the "probe" component logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// NewContext returns an uninitialized Context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		runtime: NoRuntime{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.host == nil {
		c.host = NewHostProber(ExecRunner{})
	}
	if c.logger == nil {
		c.logger = logging.Get("probe")
	}
	return c
}

// Init makes a snapshot available, from the store when a fresh one exists and
// by probing otherwise. Errors are those of Refresh. Only snapshots of a
// successful device probe are reused from the store.
func (c *Context) Init(ctx context.Context) (*types.Capabilities, error) {
	if caps := c.loadFresh(); caps != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return nil, ErrClosed
		}
		c.snap = caps
		c.logger.Debug("using stored capabilities", "probed_at", caps.ProbedAt, "devices", len(caps.Devices))
		return caps.Clone(), nil
	}
	return c.Refresh(ctx)
}

// Refresh probes the host and devices and replaces the snapshot. A snapshot
// is installed even when device probing fails, so host information stays
// available; the device error is returned and recorded in DeviceError. Such
// snapshots are not written to the store.
func (c *Context) Refresh(ctx context.Context) (*types.Capabilities, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.isClosed() {
		return nil, ErrClosed
	}

	start := c.now()
	host, hostErr := c.host.Probe(ctx)
	if hostErr != nil {
		c.logger.Warn("host probe incomplete", "error", hostErr)
	}

	devices, devErr := ProbeDevices(ctx, c.runtime)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := &types.Capabilities{
		Host:     host,
		Devices:  devices,
		Runtime:  c.runtime.Name(),
		ProbedAt: start,
	}

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(devErr, ErrNoDeviceDetected):
		outcome = metrics.OutcomeNoDevice
		caps.DeviceError = devErr.Error()
		c.logger.Info("no devices detected", "runtime", caps.Runtime)
	case devErr != nil:
		outcome = metrics.OutcomeError
		caps.DeviceError = devErr.Error()
		c.logger.Error("device probe failed", "runtime", caps.Runtime, "error", devErr)
	default:
		c.logger.Info("probed devices", "runtime", caps.Runtime, "devices", len(devices))
	}
	c.metrics.ObserveProbe(outcome, c.now().Sub(start).Seconds(), len(devices))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.snap = caps
	c.mu.Unlock()

	if c.store != nil && devErr == nil {
		if err := c.store.Save(c.storeKey(), caps); err != nil {
			c.logger.Warn("failed to store capabilities", "error", err)
		}
	}
	return caps.Clone(), devErr
}

// Snapshot returns a copy of the current snapshot, or false before Init.
func (c *Context) Snapshot() (*types.Capabilities, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || c.closed {
		return nil, false
	}
	return c.snap.Clone(), true
}

// Device returns device index from the current snapshot.
func (c *Context) Device(index int) (types.DeviceInfo, error) {
	caps, ok := c.Snapshot()
	if !ok {
		return types.DeviceInfo{}, errors.New("capabilities not initialized")
	}
	dev, ok := caps.Device(index)
	if !ok {
		if len(caps.Devices) == 0 {
			return types.DeviceInfo{}, ErrNoDeviceDetected
		}
		return types.DeviceInfo{}, fmt.Errorf("%w: %d of %d", ErrDeviceIndex, index, len(caps.Devices))
	}
	return dev, nil
}

// Close releases the snapshot. Later calls to Init and Refresh fail with
// ErrClosed. Close is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.snap = nil
	return nil
}

func (c *Context) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Context) loadFresh() *types.Capabilities {
	if c.store == nil || c.ttl <= 0 {
		return nil
	}
	caps, err := c.store.Load(c.storeKey())
	if err != nil || caps == nil {
		return nil
	}
	if caps.DeviceError != "" || caps.Runtime != c.runtime.Name() || c.now().Sub(caps.ProbedAt) >= c.ttl {
		return nil
	}
	return caps
}

// storeKey identifies this host and runtime.
func (c *Context) storeKey() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return host + "/" + c.runtime.Name()
}

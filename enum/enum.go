// Package enum implements the Enumerator: the state machine that walks
// NetworkCheck → Devices → Products → Standards → Finish on every
// (re-)enumeration pass, reconciling the Persistence Store with the live
// state of the mesh and reloading the Driver Context Registry for any
// product whose driver set changed.
package enum

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/bus"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedcoordinator"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

// MinDPAVersionFloor is the lowest DPA version the Products phase will
// walk a package lookup down to before giving up (768 == 0x0300).
const MinDPAVersionFloor uint16 = 0x0300

// frcBatchedDevicesMemoryReadThreshold is the minimum DPA version at
// which the Devices phase prefers FRC-batched memory reads over polling
// (0x0402).
const frcBatchedDevicesMemoryReadThreshold uint16 = 0x0402

// frcMaxBatch is the maximum number of nodes read in one selective FRC
// memory-read batch.
const frcMaxBatch = 15

// retryDelay is the fixed backoff the enumerator waits after a
// network-level pass abort before trying again.
const retryDelay = 3 * time.Second

// Params customizes one enumeration pass.
type Params struct {
	FullReenumerate bool
	WithStandards   bool
	Addresses       []int // empty means every bonded/discovered address
}

// Progress is published on the Progress topic as a pass advances, giving
// the otherwise-silent state machine an observable stream.
type Progress struct {
	State   string
	Address int
	Err     error
}

// Enumerator state-machine states, published via Progress.
const (
	StateNetworkCheck = "NetworkCheck"
	StateDevices      = "Devices"
	StateProducts     = "Products"
	StateStandards    = "Standards"
	StateFinish       = "Finish"
)

// Catalog resolves a device's product/driver package from the external
// Repository Cache. It is out of this module's scope to implement the
// cache itself; the Enumerator only consumes lookups through this
// interface.
type Catalog interface {
	// PackageForExact looks up a driver package for an exact
	// (hwpid, hwpidVersion, osVersion, dpaVersion) tuple.
	PackageForExact(hwpid, hwpidVersion int, osVersion, dpaVersion string) (Package, bool)
	// LatestPerPeripheral returns the newest known driver for each
	// peripheral, used for the non-certified HWPID fallback.
	LatestPerPeripheral(peripherals []int) []store.Driver
}

// Package is one resolved catalog entry: the driver set a product
// should load.
type Package struct {
	Drivers []store.Driver
}

// Enumerator owns the serialized enumeration pass and its dependencies.
type Enumerator struct {
	store   *store.Store
	radio   *radio.Coordinator
	reg     *registry.Registry
	catalog Catalog
	cfg     config.Enumerator
	log     *logrus.Entry

	Progress bus.Topic[Progress]

	mu      sync.Mutex
	running bool
	pending *Params

	cron *cron.Cron
}

// New builds an Enumerator over its collaborators.
func New(s *store.Store, r *radio.Coordinator, reg *registry.Registry, catalog Catalog, cfg config.Enumerator, log *logrus.Entry) *Enumerator {
	return &Enumerator{
		store:   s,
		radio:   r,
		reg:     reg,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
		cron:    cron.New(),
	}
}

// Invoke requests an enumeration pass. If a pass is already running, the
// requested params are stored as pending (replacing any params stored
// earlier) and Invoke returns immediately; once the running pass ends,
// a follow-up pass runs with the pending params.
func (e *Enumerator) Invoke(ctx context.Context, params Params) error {
	e.mu.Lock()
	if e.running {
		e.pending = &params
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	go e.runAndRetry(context.WithoutCancel(ctx), params)
	return nil
}

// IsRunning reports whether a pass is currently in flight.
func (e *Enumerator) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ErrAlreadyRunning is returned by RunSync when a pass triggered by
// Invoke or a prior RunSync call is already in flight.
var ErrAlreadyRunning = errors.New("enumeration pass already running")

// RunSync runs one enumeration pass synchronously, the contract a
// messaging-layer caller expects: unlike Invoke, it never silently
// merges params into an already-running pass, it reports
// ErrAlreadyRunning instead.
func (e *Enumerator) RunSync(ctx context.Context, params Params) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		next := e.pending
		e.pending = nil
		e.mu.Unlock()
		if next != nil {
			_ = e.Invoke(ctx, *next)
		}
	}()

	return e.RunPass(ctx, params)
}

func (e *Enumerator) runAndRetry(ctx context.Context, params Params) {
	defer func() {
		e.mu.Lock()
		e.running = false
		next := e.pending
		e.pending = nil
		e.mu.Unlock()
		if next != nil {
			e.Invoke(ctx, *next)
		}
	}()

	err := e.RunPass(ctx, params)
	if err == nil {
		return
	}
	if !errors.As(err, new(*NetworkError)) {
		e.log.WithError(err).Warn("enumeration pass failed; not a network-level error, no retry scheduled")
		return
	}
	e.log.WithError(err).Warn("enumeration pass aborted by a network-level failure; retrying")
	e.scheduleRetry(ctx, params)
}

func (e *Enumerator) scheduleRetry(ctx context.Context, params Params) {
	id, _ := e.cron.AddFunc(cronSpecForDelay(retryDelay), func() {})
	timer := time.AfterFunc(retryDelay, func() {
		e.cron.Remove(id)
		_ = e.Invoke(ctx, params)
	})
	_ = timer
}

// cronSpecForDelay returns a cron spec equivalent to one delay-out
// firing. robfig/cron has no native "run once in N seconds" schedule, so
// the entry it returns is immediately superseded by the time.AfterFunc
// in scheduleRetry; registering it keeps the retry visible in the
// scheduler's entry list for diagnostics until the timer fires and
// removes it.
func cronSpecForDelay(d time.Duration) string {
	return "@every " + d.String()
}

// NetworkError marks a pass abort triggered by a NetworkCheck failure
// (bonded/discovered bitmap or stored-address read), the only failure
// class that schedules an automatic retry. A failed per-node MID read
// does not produce one (see readMIDTable).
type NetworkError struct {
	cause error
}

func (e *NetworkError) Error() string { return "network-level enumeration read failed: " + e.cause.Error() }
func (e *NetworkError) Unwrap() error { return e.cause }

// RunPass executes one full pass synchronously and returns its error,
// for callers (such as a synchronous message-bus invocation) that need
// the outcome rather than fire-and-forget behavior.
func (e *Enumerator) RunPass(ctx context.Context, params Params) error {
	h, err := e.radio.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire exclusive radio access for enumeration")
	}
	defer h.Release()

	e.Progress.Publish(Progress{State: StateNetworkCheck})
	nc, err := e.networkCheck(ctx, h, params)
	if err != nil {
		return &NetworkError{cause: err}
	}

	e.Progress.Publish(Progress{State: StateDevices})
	devices, err := e.enumerateDevices(ctx, h, nc)
	if err != nil {
		return err
	}

	e.Progress.Publish(Progress{State: StateProducts})
	if err := e.reconcileProducts(ctx, devices, nc.toDelete); err != nil {
		return err
	}

	if params.WithStandards {
		e.Progress.Publish(Progress{State: StateStandards})
		for _, d := range devices {
			if err := e.probeStandards(ctx, h, d); err != nil {
				e.log.WithError(err).WithField("address", d.address).Warn("standards probe failed for device")
			}
		}
	}

	e.Progress.Publish(Progress{State: StateFinish})
	return nil
}

// ReloadDrivers forces every product's Driver Context Registry context
// to be rebuilt from the database, backing iqrfDb_ReloadDrivers.
func (e *Enumerator) ReloadDrivers(ctx context.Context) error {
	products, err := e.store.Products.All(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		e.reg.Unload(int32(p.ID))
		drivers, err := e.store.Drivers.ByProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		sources := make([]registry.Source, len(drivers))
		for i, d := range drivers {
			sources[i] = registry.Source{Name: d.Name, Code: d.DriverSource}
		}
		if _, err := e.reg.LoadContext(int32(p.ID), sources); err != nil {
			return err
		}
	}
	return nil
}

// IsMutatingCoordinatorCommand reports whether a coordinator response
// should wake the enumerator (trigger rule (b)).
func IsMutatingCoordinatorCommand(pnum, pcmd byte) bool {
	return embedcoordinator.IsMutating(pnum, pcmd)
}

// IsNonCertified reports whether a HWPID's low nibble marks it
// non-certified.
func IsNonCertified(hwpid int) bool {
	return hwpid&0x0F == 0x0F
}

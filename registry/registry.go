// Package registry implements the Driver Context Registry: a pool of
// Javascript execution contexts, one per product, each preloaded with
// the set of standard drivers that product's peripherals need. The
// Message Dispatcher calls into a context to translate a user-facing
// request into a DPA request, and a DPA response back into a user-facing
// result, without hand-writing Go marshalling for every standard.
package registry

import (
	"sync"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultContextID is the context used for requests that cannot be
// resolved to a product or a custom per-HWPID driver set.
const DefaultContextID int32 = -1

// DriverKey identifies one driver by the peripheral it implements and
// the driver version it speaks, mirroring store.Driver's identity.
type DriverKey struct {
	Peripheral byte
	Version    uint16
}

// Source is one piece of driver or wrapper Javascript to load into a
// context, identified for logging and error messages.
type Source struct {
	Name string
	Code string
}

// Registry owns every loaded Context, keyed by context id.
//
// Context id convention: non-negative ids are product ids (store.Product
// primary keys); DefaultContextID (-1) is the fallback context with only
// the generic wrapper loaded; ids <= -2 are custom per-HWPID contexts,
// computed as CustomContextID.
type Registry struct {
	mu       sync.RWMutex
	contexts map[int32]*Context
	wrapper  []Source
	log      *logrus.Entry

	addressToContext map[uint16]int32
}

// New creates an empty registry. wrapper is loaded into every context
// before its drivers, the shared helper functions (hex encode/decode,
// bit packing, ...) every driver script assumes are in scope.
func New(wrapper []Source, log *logrus.Entry) *Registry {
	return &Registry{
		contexts:         map[int32]*Context{},
		wrapper:          wrapper,
		log:              log,
		addressToContext: map[uint16]int32{},
	}
}

// CustomContextID computes the context id for a device identified only
// by HWPID, with no product row (e.g. during early enumeration before a
// product has been recorded).
func CustomContextID(hwpid uint16) int32 {
	return -(2 + int32(hwpid))
}

// LoadContext builds or replaces the context for id from wrapper plus
// sources, tearing down any previous context at the same id first. It is
// idempotent: loading the same (id, driver id set) twice is a no-op the
// caller should avoid by diffing against DriverIDSet, but LoadContext
// itself does not check — that diff is the registry user's
// responsibility (store.ProductDriverRepo.DriverIDSet).
func (r *Registry) LoadContext(id int32, sources []Source) (*Context, error) {
	vm := goja.New()
	for _, s := range r.wrapper {
		if _, err := vm.RunString(s.Code); err != nil {
			return nil, errors.Wrapf(err, "load wrapper %s into context %d", s.Name, id)
		}
	}
	for _, s := range sources {
		if _, err := vm.RunString(s.Code); err != nil {
			return nil, errors.Wrapf(err, "load driver %s into context %d", s.Name, id)
		}
	}

	ctx := &Context{id: id, vm: vm, driverNames: sourceNames(sources)}

	r.mu.Lock()
	r.contexts[id] = ctx
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"context": id, "drivers": ctx.driverNames}).Debug("driver context loaded")
	return ctx, nil
}

func sourceNames(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	return names
}

// Unload removes the context at id, freeing its VM. Used when a
// product's driver set is rebuilt from scratch (iqrfDb_ReloadDrivers).
func (r *Registry) Unload(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// Get returns the context at id, or the default context if none is
// loaded for id, or (nil, false) if even the default is missing.
func (r *Registry) Get(id int32) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ctx, ok := r.contexts[id]; ok {
		return ctx, true
	}
	ctx, ok := r.contexts[DefaultContextID]
	return ctx, ok
}

// MapAddressToContext records which context id a network address
// resolves to, the enumerator's job after every (re-)enumeration pass.
func (r *Registry) MapAddressToContext(address uint16, contextID int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addressToContext[address] = contextID
}

// ContextForAddress resolves a network address to a Context, following
// the precedence explicit address mapping, then hwpid-derived custom
// context, then DefaultContextID (see DESIGN.md, "context precedence").
func (r *Registry) ContextForAddress(address uint16, hwpid uint16) (*Context, bool) {
	r.mu.RLock()
	id, hasAddress := r.addressToContext[address]
	r.mu.RUnlock()
	if hasAddress {
		return r.Get(id)
	}
	if custom, ok := r.Get(CustomContextID(hwpid)); ok {
		return custom, true
	}
	return r.Get(DefaultContextID)
}

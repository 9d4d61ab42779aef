package registry

import (
	"encoding/json"
	"sync"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// Context is one loaded Javascript VM plus the driver names baked into
// it. The goja runtime is not safe for concurrent use, and the Message
// Dispatcher calls into a context before acquiring exclusive radio
// access, so every call into the VM is serialized by the context's own
// mutex.
type Context struct {
	mu          sync.Mutex
	id          int32
	vm          *goja.Runtime
	driverNames []string
}

// ID returns the context's id.
func (c *Context) ID() int32 { return c.id }

// DriverNames returns the names of the driver sources loaded into this
// context, for logging and diagnostics.
func (c *Context) DriverNames() []string { return append([]string(nil), c.driverNames...) }

// CallRequest invokes "<mType>_Request_req" with params, returning the
// JSON the driver produced for the outgoing DPA request body (the
// pNum/pCmd/rdata shape dpa.RawHDP understands).
func (c *Context) CallRequest(mType string, params json.RawMessage) (json.RawMessage, error) {
	return c.call(mType+"_Request_req", params)
}

// CallResponse invokes "<mType>_Response_rsp" with the raw DPA response
// body plus the original request params, returning the JSON result the
// Message Dispatcher embeds into its reply envelope.
func (c *Context) CallResponse(mType string, params json.RawMessage) (json.RawMessage, error) {
	return c.call(mType+"_Response_rsp", params)
}

func (c *Context) call(fnName string, params json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fnValue := c.vm.Get(fnName)
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.Errorf("driver function %s not defined in context %d", fnName, c.id)
	}

	var paramsGo interface{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &paramsGo); err != nil {
			return nil, errors.Wrapf(err, "unmarshal params for %s", fnName)
		}
	}

	result, err := fn(goja.Undefined(), c.vm.ToValue(paramsGo))
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", fnName)
	}

	out, err := json.Marshal(result.Export())
	if err != nil {
		return nil, errors.Wrapf(err, "marshal result of %s", fnName)
	}
	return out, nil
}

// HasFunction reports whether fnName is defined in this context, used by
// the dispatcher to decide whether a message type is servable before
// attempting a call.
func (c *Context) HasFunction(fnName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := goja.AssertFunction(c.vm.Get(fnName))
	return ok
}

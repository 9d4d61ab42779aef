// Package radio implements the Exclusive-Access Coordinator: a
// single-writer gate over the physical IQRF transceiver. Every DPA
// transaction — request, confirmation, response, and any asynchronous
// frames it triggers — runs while holding the gate's one permit, so two
// callers never interleave requests on the wire.
package radio

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/bus"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// Default per-scope transaction timeouts.
const (
	DefaultTimeoutLocal  = 1 * time.Second
	DefaultTimeoutRouted = 6 * time.Second
	DefaultTimeoutFRC    = 5 * time.Second
)

// ErrorCode classifies how a transaction ended.
type ErrorCode int

// Transaction outcomes.
const (
	TRN_OK ErrorCode = iota
	TRN_NO_RESPONSE
	TRN_BAD_RESPONSE
	TRN_BAD_REQUEST
	TRN_TIMEOUT
	TRN_ABORTED
	TRN_EXCLUSIVE_UNAVAILABLE
)

func (c ErrorCode) String() string {
	switch c {
	case TRN_OK:
		return "OK"
	case TRN_NO_RESPONSE:
		return "NO_RESPONSE"
	case TRN_BAD_RESPONSE:
		return "BAD_RESPONSE"
	case TRN_BAD_REQUEST:
		return "BAD_REQUEST"
	case TRN_TIMEOUT:
		return "TIMEOUT"
	case TRN_ABORTED:
		return "ABORTED"
	case TRN_EXCLUSIVE_UNAVAILABLE:
		return "EXCLUSIVE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// TransactionResult is what a completed Execute call reports back.
type TransactionResult struct {
	Code     ErrorCode
	Response dpa.ResponseFrame
	Err      error
}

// frcPNUM mirrors the FRC peripheral number (embedfrc.PNUM). radio does
// not import the embedfrc package itself, to keep the generic transport
// layer from depending on one specific peripheral; the value is fixed by
// the DPA protocol and duplicated here.
const frcPNUM byte = 0x0D

// Transport is the physical or simulated channel a Coordinator drives.
// Execute sends frame and blocks until a matching response arrives, the
// timeout elapses, or ctx is cancelled. Implementations must themselves
// watch ctx.Done and return promptly; the Coordinator does not kill
// goroutines it starts.
type Transport interface {
	Execute(ctx context.Context, frame dpa.Frame, timeout time.Duration) (TransactionResult, error)
}

// Coordinator serializes access to a Transport behind a one-permit
// semaphore.
type Coordinator struct {
	transport Transport
	sem       chan struct{}
	log       *logrus.Entry

	// Async is published to by the Transport whenever it receives a
	// frame with the async bit set outside of any transaction it is
	// currently running (dpa.IsAsync). The Message Dispatcher's
	// AsyncConsumer is the sole subscriber.
	Async bus.Topic[dpa.ResponseFrame]
}

// New creates a Coordinator over transport.
func New(transport Transport, log *logrus.Entry) *Coordinator {
	c := &Coordinator{transport: transport, sem: make(chan struct{}, 1), log: log}
	c.sem <- struct{}{}
	return c
}

// PublishAsync fans an asynchronously received frame out to Async. A
// Transport implementation calls this directly when it detects
// dpa.IsAsync on a frame that did not match any transaction it was
// asked to run.
func (c *Coordinator) PublishAsync(frame dpa.ResponseFrame) {
	c.Async.Publish(frame)
}

// Handle is the permit a caller holds between Acquire and Release. All
// transactions run through a Handle; there is no way to call Execute
// without first acquiring one.
type Handle struct {
	c        *Coordinator
	released bool
}

// Acquire blocks until the coordinator's single permit is free or ctx is
// cancelled. The caller MUST call Release when done, typically via
// defer.
func (c *Coordinator) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case <-c.sem:
		return &Handle{c: c}, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "acquire exclusive radio access")
	}
}

// TryAcquire attempts to acquire the permit without blocking, returning
// (nil, false) if the radio is already exclusively held.
func (c *Coordinator) TryAcquire() (*Handle, bool) {
	select {
	case <-c.sem:
		return &Handle{c: c}, true
	default:
		return nil, false
	}
}

// Release returns the permit. Calling Release twice is a no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.c.sem <- struct{}{}
}

// ExecuteTransaction runs one request/response transaction through the
// held exclusive access, retrying up to retries additional times while
// the outcome is not TRN_OK and not TRN_ABORTED. FRC transactions
// (frame.PNUM == frcPNUM) are never retried regardless of retries: a
// repeated FRC Send restarts the air-time-expensive aggregation from
// scratch, so callers needing resilience should instead fall back to a
// narrower selective FRC rather than blindly retrying here. Cancelling
// ctx while a transaction is in flight aborts it with TRN_ABORTED; the
// Transport is expected to discard any late-arriving frame into a
// buffered channel rather than block forever.
func (h *Handle) ExecuteTransaction(ctx context.Context, frame dpa.Frame, timeout time.Duration, retries int) TransactionResult {
	if h.released {
		return TransactionResult{Code: TRN_ABORTED, Err: errors.New("handle already released")}
	}
	if frame.PNUM == frcPNUM && retries > 0 {
		h.c.log.WithField("nadr", frame.NADR).Warn("FRC transactions are never retried; ignoring requested retries")
		retries = 0
	}

	var result TransactionResult
	for attempt := 0; ; attempt++ {
		result = h.executeOnce(ctx, frame, timeout)
		if result.Code == TRN_OK || result.Code == TRN_ABORTED || attempt >= retries {
			return result
		}
		h.c.log.WithFields(logrus.Fields{"nadr": frame.NADR, "attempt": attempt + 1, "code": result.Code}).Warn("retrying transaction")
	}
}

func (h *Handle) executeOnce(ctx context.Context, frame dpa.Frame, timeout time.Duration) TransactionResult {
	resultCh := make(chan TransactionResult, 1)
	go func() {
		r, err := h.c.transport.Execute(ctx, frame, timeout)
		if err != nil && r.Code == TRN_OK {
			r.Code = TRN_BAD_RESPONSE
		}
		r.Err = err
		resultCh <- r
	}()

	select {
	case r := <-resultCh:
		return r
	case <-ctx.Done():
		h.c.log.WithField("nadr", frame.NADR).Warn("transaction aborted: context cancelled")
		return TransactionResult{Code: TRN_ABORTED, Err: ctx.Err()}
	case <-time.After(timeout + 500*time.Millisecond):
		// Transport failed to honor its own timeout; don't hang forever.
		return TransactionResult{Code: TRN_TIMEOUT, Err: errors.New("transport did not return within timeout")}
	}
}

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/bus"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

// asyncRoute maps a (pnum, pcmd) pair to the message type an async
// inbound frame is rendered as.
type asyncRoute struct {
	pnum byte
	pcmd byte
}

// asyncRoutes is deliberately small: only standards whose async delivery
// is a documented, supported path are listed.
var asyncRoutes = map[asyncRoute]string{
	{pnum: 0x5E, pcmd: 0x3D}: "iqrfSensor_ReadSensorsWithTypes",
}

// AsyncConsumer is the sole subscriber of the coordinator's async-frame
// topic; it renders each inbound async frame through the same
// driver-backed response path a synchronous request would use, and
// publishes the result for anything downstream (messaging-layer
// publishers, tests) to observe.
type AsyncConsumer struct {
	dispatcher *Dispatcher
	log        *logrus.Entry
	counter    int64

	Envelopes bus.Topic[Envelope]
}

// NewAsyncConsumer builds a consumer bound to dispatcher.
func NewAsyncConsumer(dispatcher *Dispatcher, log *logrus.Entry) *AsyncConsumer {
	return &AsyncConsumer{dispatcher: dispatcher, log: log}
}

// Run subscribes to async and blocks, rendering every frame until ctx is
// cancelled or async is closed. Intended to run in its own goroutine.
func (c *AsyncConsumer) Run(ctx context.Context, async *bus.Topic[dpa.ResponseFrame]) {
	sub := async.Subscribe(32)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.Values:
			if !ok {
				return
			}
			c.handle(ctx, frame)
		}
	}
}

func (c *AsyncConsumer) handle(ctx context.Context, frame dpa.ResponseFrame) {
	mType, ok := asyncRoutes[asyncRoute{pnum: frame.PNUM, pcmd: frame.PCMD}]
	if !ok {
		c.log.WithFields(logrus.Fields{"pnum": frame.PNUM, "pcmd": frame.PCMD}).Debug("async frame has no registered message type")
		return
	}

	n := atomic.AddInt64(&c.counter, 1)
	msgID := fmt.Sprintf("async-%d", n)

	params, _ := json.Marshal(map[string]interface{}{"nAdr": frame.NADR, "hwpId": frame.HWPID})
	driverCtx, ok := c.dispatcher.reg.ContextForAddress(frame.NADR, frame.HWPID)
	if !ok {
		c.log.WithField("msgId", msgID).Warn("async frame dropped: no driver context available")
		return
	}

	respJSON, _ := json.Marshal(dpa.FromResponseFrame(frame, params))
	resultJSON, err := driverCtx.CallResponse(mType, respJSON)
	if err != nil {
		c.log.WithError(err).WithField("msgId", msgID).Warn("async frame response translation failed")
		return
	}

	var result interface{}
	_ = json.Unmarshal(resultJSON, &result)
	rsp := map[string]interface{}{"result": result}
	c.dispatcher.applyMetadata(ctx, int(frame.NADR), rsp)
	rspBytes, _ := json.Marshal(rsp)

	c.Envelopes.Publish(okEnvelope(mType, msgID, rspBytes, nil))
}

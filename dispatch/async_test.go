package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
)

const sensorDriverSource = `
function iqrfSensor_ReadSensorsWithTypes_Response_rsp(params) {
	return { sensors: [{ type: 1, value: 21.5 }, { type: 133, value: -60 }] };
}
`

// S6: an async inbound Sensor ReadSensorsWithTypes frame is rendered
// through the normal driver-backed response path and published with a
// msgId starting with "async-".
func TestS6AsyncSensorFrame(t *testing.T) {
	d, reg := newTestDispatcher(t, &fakeTransport{})
	_, err := reg.LoadContext(registry.DefaultContextID, []registry.Source{{Name: "sensor", Code: sensorDriverSource}})
	require.NoError(t, err)

	consumer := NewAsyncConsumer(d, newLog())
	sub := consumer.Envelopes.Subscribe(1)
	defer sub.Unsubscribe()

	frame := dpa.ResponseFrame{NADR: 3, PNUM: 0x5E, PCMD: 0x3D, HWPID: 0xFFFF, RCode: 0x00}
	consumer.handle(context.Background(), frame)

	select {
	case env := <-sub.Values:
		assert.Equal(t, "iqrfSensor_ReadSensorsWithTypes", env.MType)
		assert.True(t, strings.HasPrefix(env.Data.MsgID, "async-"))

		var rsp struct {
			Result struct {
				Sensors []map[string]interface{} `json:"sensors"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(env.Data.Rsp, &rsp))
		assert.Len(t, rsp.Result.Sensors, 2)
	default:
		t.Fatal("expected an envelope to be published")
	}
}

func TestS6AsyncFrameWithUnknownRouteIsDropped(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeTransport{})
	consumer := NewAsyncConsumer(d, newLog())
	sub := consumer.Envelopes.Subscribe(1)
	defer sub.Unsubscribe()

	frame := dpa.ResponseFrame{NADR: 3, PNUM: 0x01, PCMD: 0x00}
	consumer.handle(context.Background(), frame)

	select {
	case <-sub.Values:
		t.Fatal("expected no envelope for an unrouted async frame")
	default:
	}
}

package enum

import (
	"context"
	"fmt"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/std/binaryoutput"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/std/light"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/std/sensor"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

// probeStandards implements the Standards transition for one device:
// probe each standard peripheral and create/update its capability rows,
// deleting rows for standards the device no longer declares.
func (e *Enumerator) probeStandards(ctx context.Context, h *radio.Handle, d deviceInfo) error {
	row, err := e.store.Devices.ByAddress(ctx, int(d.address))
	if err != nil {
		return err
	}

	if count, ok := e.probeBinaryOutputCount(ctx, h, d.address); ok {
		if err := e.store.BinaryOutputs.ReplaceForDevice(ctx, row.ID, count); err != nil {
			return err
		}
	} else if err := e.store.BinaryOutputs.ReplaceForDevice(ctx, row.ID, 0); err != nil {
		return err
	}

	if count, ok := e.probeLightCount(ctx, h, d.address); ok {
		if err := e.store.Lights.ReplaceForDevice(ctx, row.ID, count); err != nil {
			return err
		}
	} else if err := e.store.Lights.ReplaceForDevice(ctx, row.ID, 0); err != nil {
		return err
	}

	return e.probeSensors(ctx, h, row)
}

func (e *Enumerator) probeBinaryOutputCount(ctx context.Context, h *radio.Handle, addr uint16) (int, bool) {
	res := h.ExecuteTransaction(ctx, binaryoutput.EnumerateRequest(addr, dpa.HWPIDDoNotCheck), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return 0, false
	}
	count, err := binaryoutput.ParseEnumerateResponse(res.Response)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (e *Enumerator) probeLightCount(ctx context.Context, h *radio.Handle, addr uint16) (int, bool) {
	// Light has no dedicated Enumerate command; presence is inferred
	// from a successful SendLdiCommands probe with zero commands, which
	// returns an empty but well-formed answer set on a light-capable
	// node and a protocol error otherwise.
	res := h.ExecuteTransaction(ctx, light.SendLdiCommandsRequest(addr, dpa.HWPIDDoNotCheck, nil, false), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return 0, false
	}
	if _, err := light.ParseSendLdiCommandsResponse(res.Response); err != nil {
		return 0, false
	}
	return 1, true
}

// probeSensors implements the sensor inventory reconciliation: fetch the
// enumerated sensors and rebuild the device's bindings with a dense,
// 0-based global index local to this device.
func (e *Enumerator) probeSensors(ctx context.Context, h *radio.Handle, row store.Device) error {
	res := h.ExecuteTransaction(ctx, sensor.EnumerateRequest(uint16(row.Address), dpa.HWPIDDoNotCheck), radio.DefaultTimeoutLocal, 0)
	if res.Code != radio.TRN_OK {
		return e.store.DeviceSensors.ReplaceForDevice(ctx, row.ID, nil)
	}
	quantities, err := sensor.ParseEnumerateResponse(res.Response)
	if err != nil {
		return err
	}

	bindings := make([]store.DeviceSensor, 0, len(quantities))
	for _, q := range quantities {
		sid := fmt.Sprintf("TYPE_%02X_SLOT_%d", q.Type, q.Index)
		def, err := e.store.Sensors.FindOrCreate(ctx, store.Sensor{SID: sid, Type: int(q.Type), Name: sid, ShortName: sid})
		if err != nil {
			return err
		}
		// GlobalIndex is dense within this device, 0-based: the slot a
		// binding lands on is just its position in the bindings being
		// built for row.ID, never a count over other devices.
		bindings = append(bindings, store.DeviceSensor{
			SensorID: def.ID, GlobalIndex: len(bindings), DeviceIndex: q.Index,
		})
	}
	return e.store.DeviceSensors.ReplaceForDevice(ctx, row.ID, bindings)
}

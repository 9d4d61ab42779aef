package sensorfrc

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa/embedfrc"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

func TestDecodeSample(t *testing.T) {
	data := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	v, ok := decodeSample(data, 1, 2)
	assert.True(t, ok)
	assert.Equal(t, float64(2), v)

	_, ok = decodeSample(data, 10, 2)
	assert.False(t, ok)
}

func TestWidthForTypeDefaultsToFourByte(t *testing.T) {
	assert.Equal(t, embedfrc.Width4Byte, widthForType(1))
}

func TestEverySpecFloorsAtOneSecond(t *testing.T) {
	assert.Equal(t, "@every 1s", everySpec(0))
}

// fakeFRCTransport records the last selective-FRC frame it executed and
// answers every FRC Send with a fixed two-node temperature reading.
type fakeFRCTransport struct {
	lastSendSelective dpa.Frame
	extraResultCalled bool
}

func (f *fakeFRCTransport) Execute(ctx context.Context, frame dpa.Frame, timeout time.Duration) (radio.TransactionResult, error) {
	switch frame.PCMD {
	case embedfrc.CmdSendSelective:
		f.lastSendSelective = frame
		// status byte 0x00 (success) followed by two 4-byte little-endian
		// samples: node 1 -> 215 (21.5C), node 2 -> 220 (22.0C).
		body := append([]byte{0x00},
			0xD7, 0x00, 0x00, 0x00,
			0xDC, 0x00, 0x00, 0x00,
		)
		return radio.TransactionResult{Code: radio.TRN_OK, Response: dpa.ResponseFrame{
			NADR: dpa.CoordinatorAddress, PNUM: embedfrc.PNUM, PCMD: frame.PCMD, RCode: 0x00, Body: body,
		}}, nil
	case embedfrc.CmdExtraResult:
		f.extraResultCalled = true
		return radio.TransactionResult{Code: radio.TRN_OK, Response: dpa.ResponseFrame{
			NADR: dpa.CoordinatorAddress, PNUM: embedfrc.PNUM, PCMD: frame.PCMD, RCode: 0x00,
		}}, nil
	default:
		return radio.TransactionResult{Code: radio.TRN_NO_RESPONSE}, nil
	}
}

// S4: a sensor-FRC pass over two nodes sharing one temperature binding
// issues exactly one selective FRC with a mask selecting nodes 1 and 2,
// needs no ExtraResult, and persists both decoded values.
func TestS4SensorFRCSelectiveMask(t *testing.T) {
	ctx := context.Background()
	log := logrus.NewEntry(logrus.New())

	s, err := store.Open(ctx, t.TempDir()+"/iqrfgd.db", log)
	require.NoError(t, err)
	defer s.Close()

	sensor, err := s.Sensors.FindOrCreate(ctx, store.Sensor{SID: "temperature", Type: 1, Name: "Temperature", ShortName: "T", Unit: "C", DecimalPlaces: 1})
	require.NoError(t, err)

	for _, addr := range []int{1, 2} {
		devID, err := s.Devices.Upsert(ctx, store.Device{Address: addr, MID: uint32(addr), HWPID: 0x1234, OsVersion: "4.03D", OsBuild: "08D8", DpaVersion: "4.15"})
		require.NoError(t, err)
		require.NoError(t, s.DeviceSensors.ReplaceForDevice(ctx, devID, []store.DeviceSensor{
			{SensorID: sensor.ID, GlobalIndex: 0, DeviceIndex: 0},
		}))
	}

	transport := &fakeFRCTransport{}
	coord := radio.New(transport, log)
	r := New(s, coord, config.SensorReader{}, log)

	h, err := coord.Acquire(ctx)
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, r.readType(ctx, h, 1, time.Now()))

	assert.False(t, transport.extraResultCalled)
	mask := embedfrc.SelectedNodesMask([]uint16{1, 2})
	assert.Equal(t, mask, transport.lastSendSelective.Body[1:1+embedfrc.SelectedNodesMaskLen])

	bindings, err := s.DeviceSensors.ByType(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	for _, b := range bindings {
		require.True(t, b.Value.Valid)
	}
}

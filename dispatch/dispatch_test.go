package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/enum"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

type fakeTransport struct {
	response dpa.ResponseFrame
	err      error
}

func (f *fakeTransport) Execute(ctx context.Context, frame dpa.Frame, timeout time.Duration) (radio.TransactionResult, error) {
	if f.err != nil {
		return radio.TransactionResult{Code: radio.TRN_NO_RESPONSE}, f.err
	}
	return radio.TransactionResult{Code: radio.TRN_OK, Response: f.response}, nil
}

func newLog() *logrus.Entry { return logrus.NewEntry(logrus.New()) }

func newTestDispatcher(t *testing.T, transport radio.Transport) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, newLog())
	coord := radio.New(transport, newLog())
	enumerator := enum.New(nil, coord, reg, nil, config.Enumerator{}, newLog())
	d := New(nil, coord, reg, enumerator, config.Enumerator{}, newLog())
	return d, reg
}

func TestDispatchUnknownMessageType(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeTransport{})
	env := d.Dispatch(context.Background(), Request{MType: "notAThing", MsgID: "1", Data: json.RawMessage(`{}`)})
	assert.Equal(t, StatusMsgTypeUnknown, env.Data.Status)
	assert.Equal(t, "1", env.Data.MsgID)
}

// S5: raw request/response pass through verbatim, no driver translation.
func TestRawHandlerRoundTrip(t *testing.T) {
	respBytes := []byte{0x00, 0x00, 0x02, 0x80, 0xFF, 0xFF, 0x00, 0x00, 0xD8, 0x08, 0x43, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	var respFrame dpa.ResponseFrame
	require.NoError(t, respFrame.UnmarshalBinary(respBytes))

	d, _ := newTestDispatcher(t, &fakeTransport{response: respFrame})

	req := Request{MType: "iqrfRaw", MsgID: "raw-1", Data: json.RawMessage(`{"req":{"rData":"00.00.02.00.ff.ff.00.00"}}`)}
	env := d.Dispatch(context.Background(), req)

	require.Equal(t, StatusOK, env.Data.Status)
	var rsp struct {
		RData string `json:"rData"`
	}
	require.NoError(t, json.Unmarshal(env.Data.Rsp, &rsp))
	assert.Equal(t, dpa.EncodeDottedHex(respBytes), rsp.RData)
}

const osDriverSource = `
function iqrfEmbedOs_Read_Request_req(params) {
	return { pNum: "02", pCmd: "00", rdata: "" };
}
function iqrfEmbedOs_Read_Response_rsp(params) {
	return { osVersion: "4.03D", osBuild: "08D8" };
}
`

// S2: an OS Read issued to address 1 is decoded through the driver
// context into osVersion/osBuild, not left as raw bytes.
func TestDriverBackedHandlerRoundTrip(t *testing.T) {
	respFrame := dpa.ResponseFrame{NADR: 1, PNUM: 0x02, PCMD: 0x00, RCode: 0x00}
	d, reg := newTestDispatcher(t, &fakeTransport{response: respFrame})
	_, err := reg.LoadContext(registry.DefaultContextID, []registry.Source{{Name: "os", Code: osDriverSource}})
	require.NoError(t, err)

	req := Request{MType: "iqrfEmbedOs_Read", MsgID: "os-1", Data: json.RawMessage(`{"nAdr":1,"hwpId":65535}`)}
	env := d.Dispatch(context.Background(), req)

	require.Equal(t, StatusOK, env.Data.Status)
	var rsp struct {
		Result struct {
			OsVersion string `json:"osVersion"`
			OsBuild   string `json:"osBuild"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data.Rsp, &rsp))
	assert.Equal(t, "4.03D", rsp.Result.OsVersion)
	assert.Equal(t, "08D8", rsp.Result.OsBuild)
}

func TestDriverBackedHandlerNoContextAvailable(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeTransport{})
	req := Request{MType: "iqrfEmbedOs_Read", MsgID: "os-2", Data: json.RawMessage(`{"nAdr":1}`)}
	env := d.Dispatch(context.Background(), req)
	assert.Equal(t, StatusDriverRequestFail, env.Data.Status)

	var rsp struct {
		ErrorStr string `json:"errorStr"`
	}
	require.NoError(t, json.Unmarshal(env.Data.Rsp, &rsp))
	assert.Equal(t, "no driver context available", rsp.ErrorStr)
}

// S5/verbose: a raw request issued with data.returnVerbose returns the
// wire-level request/response trace under data.raw.
func TestRawHandlerVerboseTrace(t *testing.T) {
	respBytes := []byte{0x00, 0x00, 0x02, 0x80, 0xFF, 0xFF, 0x00, 0x00, 0xD8, 0x08, 0x43, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00}
	var respFrame dpa.ResponseFrame
	require.NoError(t, respFrame.UnmarshalBinary(respBytes))

	d, _ := newTestDispatcher(t, &fakeTransport{response: respFrame})

	req := Request{MType: "iqrfRaw", MsgID: "raw-verbose", Data: json.RawMessage(`{"req":{"rData":"00.00.02.00.ff.ff.00.00"},"returnVerbose":true}`)}
	env := d.Dispatch(context.Background(), req)

	require.Equal(t, StatusOK, env.Data.Status)
	require.Len(t, env.Data.Raw, 1)
	assert.Equal(t, "00.00.02.00.ff.ff.00.00", env.Data.Raw[0].Request)
	assert.Equal(t, dpa.EncodeDottedHex(respBytes), env.Data.Raw[0].Response)
	assert.False(t, env.Data.Raw[0].ResponseTs.IsZero())
}

// A driver-request-translation failure surfaces the driver's message
// under data.rsp.errorStr in addition to data.statusStr.
func TestDriverBackedHandlerRequestTranslationFailureSurfacesErrorStr(t *testing.T) {
	d, reg := newTestDispatcher(t, &fakeTransport{})
	badDriverSource := `
function iqrfEmbedOs_Read_Request_req(params) {
	throw "boom: bad request params";
}
`
	_, err := reg.LoadContext(registry.DefaultContextID, []registry.Source{{Name: "os", Code: badDriverSource}})
	require.NoError(t, err)

	req := Request{MType: "iqrfEmbedOs_Read", MsgID: "os-3", Data: json.RawMessage(`{"nAdr":1,"hwpId":65535}`)}
	env := d.Dispatch(context.Background(), req)

	assert.Equal(t, StatusDriverRequestFail, env.Data.Status)
	var rsp struct {
		ErrorStr string `json:"errorStr"`
	}
	require.NoError(t, json.Unmarshal(env.Data.Rsp, &rsp))
	assert.Contains(t, rsp.ErrorStr, "boom")
}

// The three lifecycle message types back onto a real store and
// enumerator: iqrfDb_Reset drops the catalog, iqrfDb_ReloadDrivers
// rebuilds driver contexts, and iqrfDb_Enumerate runs a pass
// synchronously against an idle network.
func TestDbLifecycleHandlers(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/iqrfgd.db", newLog())
	require.NoError(t, err)
	defer s.Close()

	reg := registry.New(nil, newLog())
	coord := radio.New(&fakeTransport{}, newLog())
	enumerator := enum.New(s, coord, reg, nil, config.Enumerator{}, newLog())
	d := New(s, coord, reg, enumerator, config.Enumerator{}, newLog())

	env := d.Dispatch(ctx, Request{MType: "iqrfDb_ReloadDrivers", MsgID: "1", Data: json.RawMessage(`{}`)})
	assert.Equal(t, StatusOK, env.Data.Status)

	env = d.Dispatch(ctx, Request{MType: "iqrfDb_Reset", MsgID: "2", Data: json.RawMessage(`{}`)})
	assert.Equal(t, StatusOK, env.Data.Status)

	// iqrfDb_Enumerate is routed to the enumerator rather than falling
	// through to StatusMsgTypeUnknown; the fake transport can't complete a
	// real pass, but it must reach RunSync and come back with some
	// concrete outcome, not "unknown message type".
	env = d.Dispatch(ctx, Request{MType: "iqrfDb_Enumerate", MsgID: "3", Data: json.RawMessage(`{}`)})
	assert.NotEqual(t, StatusMsgTypeUnknown, env.Data.Status)
	assert.NotEqual(t, enum.ErrAlreadyRunning.Error(), env.Data.StatusStr)
}

func TestHasDriverFamilyPrefixAndFRCDetection(t *testing.T) {
	assert.True(t, hasDriverFamilyPrefix("iqrfSensor_Enumerate"))
	assert.False(t, hasDriverFamilyPrefix("iqrfRaw"))
	assert.True(t, isFRCType("iqrfSensor_Frc"))
	assert.False(t, isFRCType("iqrfSensor_Enumerate"))
}

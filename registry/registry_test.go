package registry

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const osDriverSource = `
function os_Read_Request_req(params) {
	return { nadr: params.nadr, pnum: 2, pcmd: 0, hwpid: 65535 };
}
function os_Read_Response_rsp(params) {
	return { osVersion: "4.03D", osBuild: "08D8" };
}
`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(nil, logrus.NewEntry(logrus.New()))
}

func TestLoadContextAndCallRequest(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadContext(0, []Source{{Name: "os", Code: osDriverSource}})
	require.NoError(t, err)

	ctx, ok := r.Get(0)
	require.True(t, ok)
	assert.Equal(t, []string{"os"}, ctx.DriverNames())

	out, err := ctx.CallRequest("os_Read", json.RawMessage(`{"nadr": 1}`))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(1), decoded["nadr"])
	assert.Equal(t, float64(2), decoded["pnum"])
}

func TestCallResponse(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadContext(0, []Source{{Name: "os", Code: osDriverSource}})
	require.NoError(t, err)

	ctx, _ := r.Get(0)
	out, err := ctx.CallResponse("os_Read", json.RawMessage(`{}`))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "4.03D", decoded["osVersion"])
}

func TestCallUndefinedFunction(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadContext(0, []Source{{Name: "os", Code: osDriverSource}})
	require.NoError(t, err)

	ctx, _ := r.Get(0)
	_, err = ctx.CallRequest("sensor_ReadSensorsWithTypes", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.False(t, ctx.HasFunction("sensor_ReadSensorsWithTypes_Request_req"))
}

func TestContextForAddressPrecedence(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadContext(DefaultContextID, nil)
	require.NoError(t, err)
	_, err = r.LoadContext(CustomContextID(0x1234), nil)
	require.NoError(t, err)
	_, err = r.LoadContext(7, nil)
	require.NoError(t, err)

	// No mapping yet: falls back through hwpid-derived custom context.
	ctx, ok := r.ContextForAddress(1, 0x1234)
	require.True(t, ok)
	assert.Equal(t, CustomContextID(0x1234), ctx.ID())

	// Explicit address mapping wins over the hwpid fallback.
	r.MapAddressToContext(1, 7)
	ctx, ok = r.ContextForAddress(1, 0x1234)
	require.True(t, ok)
	assert.Equal(t, int32(7), ctx.ID())

	// Unknown hwpid with no address mapping falls back to the default.
	ctx, ok = r.ContextForAddress(2, 0x9999)
	require.True(t, ok)
	assert.Equal(t, DefaultContextID, ctx.ID())
}

func TestUnload(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadContext(DefaultContextID, nil)
	require.NoError(t, err)
	_, err = r.LoadContext(3, []Source{{Name: "os", Code: osDriverSource}})
	require.NoError(t, err)

	r.Unload(3)
	ctx, ok := r.Get(3)
	require.True(t, ok, "falls back to default context")
	assert.Equal(t, DefaultContextID, ctx.ID())
}

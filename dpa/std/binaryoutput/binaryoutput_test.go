package binaryoutput

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

func TestParseEnumerateResponse(t *testing.T) {
	resp := dpa.ResponseFrame{PNUM: PNUM, PCMD: CmdEnumerate, RCode: 0x00, Body: []byte{0x04}}
	count, err := ParseEnumerateResponse(resp)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestSetOutputRoundTrip(t *testing.T) {
	req := SetOutputRequest(1, dpa.HWPIDDoNotCheck, []OutputState{{Index: 0, State: true}, {Index: 2, State: false}})
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x00}, req.Body)

	resp := dpa.ResponseFrame{PNUM: PNUM, PCMD: CmdSetOutput, RCode: 0x00, Body: []byte{0x00, 0x01}}
	prev, err := ParseSetOutputResponse(resp)
	assert.NoError(t, err)
	assert.Equal(t, []bool{false, true}, prev)
}

package embedfrc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/dpa"
)

func okResponse(body []byte) dpa.ResponseFrame {
	return dpa.ResponseFrame{NADR: dpa.CoordinatorAddress, PNUM: PNUM, PCMD: CmdSend, RCode: 0x00, Body: body}
}

func TestSelectedNodesMask(t *testing.T) {
	// Spec scenario S4: addresses 1 and 2 selected, 30-byte mask.
	mask := SelectedNodesMask([]uint16{1, 2})
	assert.Len(t, mask, SelectedNodesMaskLen)
	assert.Equal(t, byte(0b0000_0110), mask[0])
	for i := 1; i < SelectedNodesMaskLen; i++ {
		assert.Equal(t, byte(0), mask[i], "byte %d should be zero", i)
	}
}

func TestWidthBatching(t *testing.T) {
	cases := []struct {
		width            Width
		batchSize        int
		singleResponse   int
	}{
		{Width1Byte, 63, 55},
		{Width2Byte, 31, 27},
		{Width4Byte, 15, 13},
	}
	for _, c := range cases {
		assert.Equal(t, c.batchSize, c.width.BatchSize())
		assert.Equal(t, c.singleResponse, c.width.SingleResponseCapacity())
		assert.False(t, c.width.NeedsExtraResult(c.singleResponse))
		assert.True(t, c.width.NeedsExtraResult(c.singleResponse+1))
	}
}

func TestParseSendResponse(t *testing.T) {
	resp := okResponse([]byte{0x00, 0x01, 0x02, 0x03})
	r, err := ParseSendResponse(resp)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x00), r.Status)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, r.Data)
}

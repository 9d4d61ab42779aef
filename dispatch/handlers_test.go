package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReshapeFRCResultPassesThroughOnMismatch(t *testing.T) {
	d := &Dispatcher{log: newLog()}
	result := []interface{}{"a", "b"}
	out := d.reshapeFRCResult(context.Background(), []uint16{1, 2, 3}, result)
	assert.Equal(t, result, out)
}

func TestReshapeFRCResultNoSelectedNodes(t *testing.T) {
	d := &Dispatcher{log: newLog()}
	result := map[string]interface{}{"x": 1}
	out := d.reshapeFRCResult(context.Background(), nil, result)
	assert.Equal(t, result, out)
}

func TestParseAddressedParamsDefaultsHwpid(t *testing.T) {
	p := parseAddressedParams([]byte(`{"nAdr":5}`))
	assert.Equal(t, uint16(5), p.NAdr)
	assert.Equal(t, uint16(0xFFFF), p.HwpId)
}

package enum

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestIsNonCertified(t *testing.T) {
	assert.True(t, IsNonCertified(0x002F))
	assert.False(t, IsNonCertified(0x0020))
}

func TestDpaVersionStringRoundTrip(t *testing.T) {
	s := dpaVersionString(0x0403)
	assert.Equal(t, "4.03", s)
	assert.Equal(t, uint16(0x0403), dpaVersionValue(s))
}

func TestDriverSetChanged(t *testing.T) {
	before := map[int64]bool{1: true, 2: true}
	assert.False(t, driverSetChanged(before, []int64{1, 2}))
	assert.True(t, driverSetChanged(before, []int64{1}))
	assert.True(t, driverSetChanged(before, []int64{1, 2, 3}))
}

func TestIsMutatingCoordinatorCommand(t *testing.T) {
	assert.True(t, IsMutatingCoordinatorCommand(0x00, 0x04)) // BondNode
	assert.False(t, IsMutatingCoordinatorCommand(0x00, 0x00)) // AddrInfo
}

// A synchronous RunSync call against an already-running pass reports
// ErrAlreadyRunning instead of merging params the way Invoke does.
func TestRunSyncReportsAlreadyRunningInsteadOfMerging(t *testing.T) {
	e := &Enumerator{log: logrus.NewEntry(logrus.New())}
	e.running = true

	err := e.RunSync(context.Background(), Params{FullReenumerate: true})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, e.pending)
	assert.True(t, e.running)
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iqrfgd.db")
	s, err := Open(context.Background(), path, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		os.Remove(path)
	})
	return s
}

func TestOpenAppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iqrfgd.db")
	log := logrus.NewEntry(logrus.New())

	s1, err := Open(context.Background(), path, log)
	require.NoError(t, err)
	s1.Close()

	s2, err := Open(context.Background(), path, log)
	require.NoError(t, err)
	defer s2.Close()

	applied, err := s2.Migrations.Applied(context.Background())
	require.NoError(t, err)
	assert.True(t, applied["0001_init.sql"])
}

func TestDeviceUpsertAndByAddress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Devices.Upsert(ctx, Device{Address: 1, MID: 0x01020304, HWPID: 0x1234, OsVersion: "4.03D", OsBuild: "08D8", DpaVersion: "4.15"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	d, err := s.Devices.ByAddress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), d.MID)

	// Re-upsert at the same address updates in place rather than duplicating.
	_, err = s.Devices.Upsert(ctx, Device{Address: 1, MID: 0x01020304, HWPID: 0x5678, OsVersion: "4.03D", OsBuild: "08D8", DpaVersion: "4.15"})
	require.NoError(t, err)

	d, err = s.Devices.ByAddress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0x5678, d.HWPID)

	all, err := s.Devices.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeviceDeleteByAddressCascadesSensorBindings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Devices.Upsert(ctx, Device{Address: 2, MID: 0xAABBCCDD, OsVersion: "4.03D", OsBuild: "08D8", DpaVersion: "4.15"})
	require.NoError(t, err)

	sensor, err := s.Sensors.FindOrCreate(ctx, Sensor{SID: "TEMPERATURE", Type: 1, Name: "Temperature", ShortName: "T", Unit: "°C", DecimalPlaces: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeviceSensors.ReplaceForDevice(ctx, id, []DeviceSensor{{SensorID: sensor.ID, GlobalIndex: 0, DeviceIndex: 0}}))

	require.NoError(t, s.Devices.DeleteByAddress(ctx, 2))

	bindings, err := s.DeviceSensors.ByDeviceAddress(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, bindings)

	// ByType joins only the sensors table, so a binding row left behind by
	// a missing cascade would still show up here.
	byType, err := s.DeviceSensors.ByType(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, byType)
}

func TestProductDriversLinkAndDiff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	product, err := s.Products.FindOrCreate(ctx, Product{HWPID: 0x1234, OsVersion: "4.03D", DpaVersion: "4.15"})
	require.NoError(t, err)

	driverA, err := s.Drivers.FindOrCreate(ctx, Driver{Peripheral: 0x02, Version: 1, Name: "os", DriverSource: "/* os driver */", DriverHash: "a"})
	require.NoError(t, err)
	driverB, err := s.Drivers.FindOrCreate(ctx, Driver{Peripheral: 0x5E, Version: 1, Name: "sensor", DriverSource: "/* sensor driver */", DriverHash: "b"})
	require.NoError(t, err)

	require.NoError(t, s.ProductDrivers.ReplaceLinks(ctx, product.ID, []int64{driverA.ID, driverB.ID}))

	set, err := s.ProductDrivers.DriverIDSet(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, set[driverA.ID])
	assert.True(t, set[driverB.ID])

	// A reload with only driverA should drop driverB from the set.
	require.NoError(t, s.ProductDrivers.ReplaceLinks(ctx, product.ID, []int64{driverA.ID}))
	set, err = s.ProductDrivers.DriverIDSet(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.False(t, set[driverB.ID])
}

func TestReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Devices.Upsert(ctx, Device{Address: 3, MID: 1, OsVersion: "4.03D", OsBuild: "08D8", DpaVersion: "4.15"})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	all, err := s.Devices.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

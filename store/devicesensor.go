package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// DeviceSensor is one sensor reading slot bound to a device: a global
// index into the Sensor-FRC Reader's polling order plus the device's own
// sensor-array index, and the last value the dispatcher or FRC reader
// recorded for it.
type DeviceSensor struct {
	ID          int64          `db:"id"`
	DeviceID    int64          `db:"device_id"`
	SensorID    int64          `db:"sensor_id"`
	GlobalIndex int            `db:"global_index"`
	DeviceIndex int            `db:"device_index"`
	Value       sql.NullFloat64 `db:"value"`
	ValueArray  sql.NullString `db:"value_array"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

// DeviceSensorRepo persists DeviceSensor rows.
type DeviceSensorRepo struct{ q Queryer }

func (r *DeviceSensorRepo) WithTx(tx Queryer) *DeviceSensorRepo { return &DeviceSensorRepo{q: tx} }

// ReplaceForDevice atomically rewrites a device's sensor bindings to
// match the inventory just decoded from Sensor_Enumerate.
func (r *DeviceSensorRepo) ReplaceForDevice(ctx context.Context, deviceID int64, bindings []DeviceSensor) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM device_sensors WHERE device_id = ?`, deviceID); err != nil {
		return errors.Wrapf(err, "clear sensor bindings for device %d", deviceID)
	}
	for _, b := range bindings {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO device_sensors (device_id, sensor_id, global_index, device_index)
			VALUES (?, ?, ?, ?)
		`, deviceID, b.SensorID, b.GlobalIndex, b.DeviceIndex); err != nil {
			return errors.Wrapf(err, "bind sensor %d to device %d", b.SensorID, deviceID)
		}
	}
	return nil
}

// UpdateValue records a fresh scalar reading for one device's global
// sensor index, the shape the Sensor-FRC Reader writes after every poll
// cycle. Scoped by device_id as well as global_index: global_index is
// only dense and unique within a device, not across the network, so
// global_index alone could update the wrong device's row.
func (r *DeviceSensorRepo) UpdateValue(ctx context.Context, deviceID int64, globalIndex int, value float64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE device_sensors SET value = ?, updated_at = ? WHERE device_id = ? AND global_index = ?
	`, value, at, deviceID, globalIndex)
	return errors.Wrapf(err, "update sensor value for device %d at global index %d", deviceID, globalIndex)
}

// UpdateValueArray records a fresh breakdown array reading (sensors that
// report more than a scalar, such as a multi-phase energy meter). Scoped
// the same way as UpdateValue.
func (r *DeviceSensorRepo) UpdateValueArray(ctx context.Context, deviceID int64, globalIndex int, valueArray string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE device_sensors SET value_array = ?, updated_at = ? WHERE device_id = ? AND global_index = ?
	`, valueArray, at, deviceID, globalIndex)
	return errors.Wrapf(err, "update sensor value array for device %d at global index %d", deviceID, globalIndex)
}

// FindOrCreateBinding returns the existing binding of sensorID to
// deviceID, or inserts one at the device's next dense global index if
// none exists yet. Used by the Sensor-FRC Reader's RSSI memory-read
// fallback to synthesize a binding for a device Sensor_Enumerate never
// reported the quantity for (RSSI is supplied by the coordinator, not
// declared by the device itself).
func (r *DeviceSensorRepo) FindOrCreateBinding(ctx context.Context, deviceID, sensorID int64, deviceIndex int) (DeviceSensor, error) {
	var existing DeviceSensor
	err := r.q.GetContext(ctx, &existing, `
		SELECT * FROM device_sensors WHERE device_id = ? AND sensor_id = ?
	`, deviceID, sensorID)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return DeviceSensor{}, errors.Wrapf(err, "look up sensor binding for device %d", deviceID)
	}

	var bindings []DeviceSensor
	if err := r.q.SelectContext(ctx, &bindings, `SELECT * FROM device_sensors WHERE device_id = ?`, deviceID); err != nil {
		return DeviceSensor{}, errors.Wrapf(err, "list sensor bindings for device %d", deviceID)
	}
	b := DeviceSensor{DeviceID: deviceID, SensorID: sensorID, GlobalIndex: len(bindings), DeviceIndex: deviceIndex}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO device_sensors (device_id, sensor_id, global_index, device_index)
		VALUES (?, ?, ?, ?)
	`, b.DeviceID, b.SensorID, b.GlobalIndex, b.DeviceIndex)
	if err != nil {
		return DeviceSensor{}, errors.Wrapf(err, "bind sensor %d to device %d", sensorID, deviceID)
	}
	b.ID, _ = res.LastInsertId()
	return b, nil
}

// ByDeviceAddress returns every sensor binding for the device bonded at
// address, joined with its definition, ordered by device-local index.
func (r *DeviceSensorRepo) ByDeviceAddress(ctx context.Context, address int) ([]DeviceSensor, error) {
	var bindings []DeviceSensor
	err := r.q.SelectContext(ctx, &bindings, `
		SELECT ds.* FROM device_sensors ds
		JOIN devices d ON d.id = ds.device_id
		WHERE d.address = ?
		ORDER BY ds.device_index
	`, address)
	return bindings, errors.Wrapf(err, "sensor bindings for device at address %d", address)
}

// ByType returns every sensor binding across the whole network for a
// given standard sensor type, the shape a broadcast "all temperature
// sensors" query needs.
func (r *DeviceSensorRepo) ByType(ctx context.Context, sensorType int) ([]DeviceSensor, error) {
	var bindings []DeviceSensor
	err := r.q.SelectContext(ctx, &bindings, `
		SELECT ds.* FROM device_sensors ds
		JOIN sensors s ON s.id = ds.sensor_id
		WHERE s.type = ?
		ORDER BY ds.global_index
	`, sensorType)
	return bindings, errors.Wrapf(err, "sensor bindings of type %d", sensorType)
}

// ByTypeGroupedByDevice returns every binding of sensorType grouped by
// owning device address, the shape the Sensor-FRC Reader uses to build
// one selective-FRC request per batch of devices sharing a quantity.
func (r *DeviceSensorRepo) ByTypeGroupedByDevice(ctx context.Context, sensorType int) (map[int][]DeviceSensor, error) {
	type row struct {
		DeviceSensor
		Address int `db:"address"`
	}
	var rows []row
	err := r.q.SelectContext(ctx, &rows, `
		SELECT ds.*, d.address AS address FROM device_sensors ds
		JOIN sensors s ON s.id = ds.sensor_id
		JOIN devices d ON d.id = ds.device_id
		WHERE s.type = ?
		ORDER BY d.address, ds.device_index
	`, sensorType)
	if err != nil {
		return nil, errors.Wrapf(err, "sensor bindings of type %d grouped by device", sensorType)
	}
	grouped := make(map[int][]DeviceSensor)
	for _, r := range rows {
		grouped[r.Address] = append(grouped[r.Address], r.DeviceSensor)
	}
	return grouped, nil
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// Light is one addressable light slot the Standards enumeration step
// found on a device.
type Light struct {
	ID       int64 `db:"id"`
	DeviceID int64 `db:"device_id"`
	Index    int   `db:"index_"`
}

// LightRepo persists Light rows.
type LightRepo struct{ q Queryer }

func (r *LightRepo) WithTx(tx Queryer) *LightRepo { return &LightRepo{q: tx} }

// ReplaceForDevice atomically rewrites a device's light set to match
// lightsNum.
func (r *LightRepo) ReplaceForDevice(ctx context.Context, deviceID int64, lightsNum int) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM lights WHERE device_id = ?`, deviceID); err != nil {
		return errors.Wrapf(err, "clear lights for device %d", deviceID)
	}
	for i := 0; i < lightsNum; i++ {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO lights (device_id, index_) VALUES (?, ?)`, deviceID, i); err != nil {
			return errors.Wrapf(err, "insert light %d for device %d", i, deviceID)
		}
	}
	return nil
}

// ByDevice returns every light slot for a device, ordered by index.
func (r *LightRepo) ByDevice(ctx context.Context, deviceID int64) ([]Light, error) {
	var lights []Light
	err := r.q.SelectContext(ctx, &lights, `SELECT * FROM lights WHERE device_id = ? ORDER BY index_`, deviceID)
	return lights, errors.Wrapf(err, "lights for device %d", deviceID)
}

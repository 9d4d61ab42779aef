package store

import (
	"context"

	"github.com/pkg/errors"
)

// BinaryOutput is one addressable output slot the Standards enumeration
// step found on a device.
type BinaryOutput struct {
	ID       int64 `db:"id"`
	DeviceID int64 `db:"device_id"`
	Index    int   `db:"index_"`
}

// BinaryOutputRepo persists BinaryOutput rows.
type BinaryOutputRepo struct{ q Queryer }

func (r *BinaryOutputRepo) WithTx(tx Queryer) *BinaryOutputRepo { return &BinaryOutputRepo{q: tx} }

// ReplaceForDevice atomically rewrites a device's binary output set to
// match outputsNum, the count just returned by BinaryOutput_Enumerate.
func (r *BinaryOutputRepo) ReplaceForDevice(ctx context.Context, deviceID int64, outputsNum int) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM binary_outputs WHERE device_id = ?`, deviceID); err != nil {
		return errors.Wrapf(err, "clear binary outputs for device %d", deviceID)
	}
	for i := 0; i < outputsNum; i++ {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO binary_outputs (device_id, index_) VALUES (?, ?)`, deviceID, i); err != nil {
			return errors.Wrapf(err, "insert binary output %d for device %d", i, deviceID)
		}
	}
	return nil
}

// ByDevice returns every binary output slot for a device, ordered by
// index.
func (r *BinaryOutputRepo) ByDevice(ctx context.Context, deviceID int64) ([]BinaryOutput, error) {
	var outputs []BinaryOutput
	err := r.q.SelectContext(ctx, &outputs, `SELECT * FROM binary_outputs WHERE device_id = ? ORDER BY index_`, deviceID)
	return outputs, errors.Wrapf(err, "binary outputs for device %d", deviceID)
}

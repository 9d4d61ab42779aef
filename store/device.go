package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Device is one bonded network node as recorded by the Enumerator.
type Device struct {
	ID           int64         `db:"id"`
	Address      int           `db:"address"`
	MID          uint32        `db:"mid"`
	HWPID        int           `db:"hwpid"`
	HWPIDVersion int           `db:"hwpid_version"`
	OsVersion    string        `db:"os_version"`
	OsBuild      string        `db:"os_build"`
	DpaVersion   string        `db:"dpa_version"`
	VRN          sql.NullInt64 `db:"vrn"`
	Zone         sql.NullInt64 `db:"zone"`
	Parent       sql.NullInt64 `db:"parent"`
	Discovered   bool          `db:"discovered"`
	ProductID    sql.NullInt64 `db:"product_id"`
	Metadata     sql.NullString `db:"metadata"`
}

// DeviceRepo persists Device rows.
type DeviceRepo struct{ q Queryer }

// WithTx returns a copy of the repository bound to a transaction.
func (r *DeviceRepo) WithTx(tx Queryer) *DeviceRepo { return &DeviceRepo{q: tx} }

// Upsert inserts a device or, if its address is already bonded, updates
// the row in place (the Enumerator re-enumerates every bonded address on
// each full pass).
func (r *DeviceRepo) Upsert(ctx context.Context, d Device) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO devices (address, mid, hwpid, hwpid_version, os_version, os_build, dpa_version, vrn, zone, parent, discovered, product_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			mid=excluded.mid, hwpid=excluded.hwpid, hwpid_version=excluded.hwpid_version,
			os_version=excluded.os_version, os_build=excluded.os_build, dpa_version=excluded.dpa_version,
			vrn=excluded.vrn, zone=excluded.zone, parent=excluded.parent,
			discovered=excluded.discovered, product_id=excluded.product_id
	`, d.Address, d.MID, d.HWPID, d.HWPIDVersion, d.OsVersion, d.OsBuild, d.DpaVersion, d.VRN, d.Zone, d.Parent, d.Discovered, d.ProductID)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert device at address %d", d.Address)
	}
	return res.LastInsertId()
}

// ByAddress fetches the device bonded at the given network address.
func (r *DeviceRepo) ByAddress(ctx context.Context, address int) (Device, error) {
	var d Device
	err := r.q.GetContext(ctx, &d, `SELECT * FROM devices WHERE address = ?`, address)
	return d, errors.Wrapf(err, "device at address %d", address)
}

// ByMID fetches the device with the given module id, used to detect a
// transceiver swap (same address, different MID) during enumeration.
func (r *DeviceRepo) ByMID(ctx context.Context, mid uint32) (Device, error) {
	var d Device
	err := r.q.GetContext(ctx, &d, `SELECT * FROM devices WHERE mid = ?`, mid)
	return d, errors.Wrapf(err, "device with MID %08x", mid)
}

// All returns every bonded device, ordered by address.
func (r *DeviceRepo) All(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := r.q.SelectContext(ctx, &devices, `SELECT * FROM devices ORDER BY address`)
	return devices, errors.Wrap(err, "list devices")
}

// Addresses returns the bonded addresses only, used by the Enumerator to
// diff against a fresh EmbedCoordinator_BondedDevices bitmap.
func (r *DeviceRepo) Addresses(ctx context.Context) ([]int, error) {
	var addrs []int
	err := r.q.SelectContext(ctx, &addrs, `SELECT address FROM devices ORDER BY address`)
	return addrs, errors.Wrap(err, "list device addresses")
}

// DeleteByAddress removes the device row bonded at address, cascading to
// its binary outputs, lights, and sensors.
func (r *DeviceRepo) DeleteByAddress(ctx context.Context, address int) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM devices WHERE address = ?`, address)
	return errors.Wrapf(err, "delete device at address %d", address)
}

// SetDiscovered updates the discovered flag recorded by the coordinator's
// DiscoveredDevices bitmap.
func (r *DeviceRepo) SetDiscovered(ctx context.Context, address int, discovered bool) error {
	_, err := r.q.ExecContext(ctx, `UPDATE devices SET discovered = ? WHERE address = ?`, discovered, address)
	return errors.Wrapf(err, "set discovered for address %d", address)
}

// SetMetadata stores the user-supplied metadata document for a device,
// surfaced under data.rsp.metaData when metadataToMessages is enabled.
func (r *DeviceRepo) SetMetadata(ctx context.Context, address int, metadata string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE devices SET metadata = ? WHERE address = ?`, metadata, address)
	return errors.Wrapf(err, "set metadata for address %d", address)
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// Driver is one cached Javascript driver, keyed by peripheral number and
// driver version the way the Driver Context Registry keys its loaded
// contexts.
type Driver struct {
	ID           int64  `db:"id"`
	Peripheral   int    `db:"peripheral"`
	Version      int    `db:"version"`
	VersionFlags int    `db:"version_flags"`
	Name         string `db:"name"`
	DriverSource string `db:"driver_source"`
	DriverHash   string `db:"driver_hash"`
}

// DriverRepo persists Driver rows.
type DriverRepo struct{ q Queryer }

func (r *DriverRepo) WithTx(tx Queryer) *DriverRepo { return &DriverRepo{q: tx} }

// FindOrCreate returns the existing driver matching d's identity tuple
// and DriverHash, or stores d. A driver already cached at the same
// peripheral/version/version_flags with a different DriverHash is
// updated in place (same row and id) to d's name, source and hash.
func (r *DriverRepo) FindOrCreate(ctx context.Context, d Driver) (Driver, error) {
	var existing Driver
	err := r.q.GetContext(ctx, &existing, `
		SELECT * FROM drivers WHERE peripheral = ? AND version = ? AND version_flags = ? AND driver_hash = ?
	`, d.Peripheral, d.Version, d.VersionFlags, d.DriverHash)
	if err == nil {
		return existing, nil
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO drivers (peripheral, version, version_flags, name, driver_source, driver_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (peripheral, version, version_flags) DO UPDATE SET
			name=excluded.name, driver_source=excluded.driver_source, driver_hash=excluded.driver_hash
	`, d.Peripheral, d.Version, d.VersionFlags, d.Name, d.DriverSource, d.DriverHash); err != nil {
		return Driver{}, errors.Wrap(err, "upsert driver")
	}
	var id int64
	if err := r.q.GetContext(ctx, &id, `
		SELECT id FROM drivers WHERE peripheral = ? AND version = ? AND version_flags = ?
	`, d.Peripheral, d.Version, d.VersionFlags); err != nil {
		return Driver{}, errors.Wrap(err, "read upserted driver id")
	}
	d.ID = id
	return d, nil
}

// ByProduct returns every driver wired to the given product, ordered by
// peripheral number, the set the Driver Context Registry loads into one
// product's execution context.
func (r *DriverRepo) ByProduct(ctx context.Context, productID int64) ([]Driver, error) {
	var drivers []Driver
	err := r.q.SelectContext(ctx, &drivers, `
		SELECT d.* FROM drivers d
		JOIN product_drivers pd ON pd.driver_id = d.id
		WHERE pd.product_id = ?
		ORDER BY d.peripheral
	`, productID)
	return drivers, errors.Wrapf(err, "drivers for product %d", productID)
}

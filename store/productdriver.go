package store

import (
	"context"

	"github.com/pkg/errors"
)

// ProductDriverRepo manages the many-to-many link between products and
// the drivers loaded into their Driver Context Registry context.
type ProductDriverRepo struct{ q Queryer }

func (r *ProductDriverRepo) WithTx(tx Queryer) *ProductDriverRepo { return &ProductDriverRepo{q: tx} }

// Link records that driverID is wired into productID's context. A
// duplicate link is a no-op.
func (r *ProductDriverRepo) Link(ctx context.Context, productID, driverID int64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO product_drivers (product_id, driver_id) VALUES (?, ?)
		ON CONFLICT (product_id, driver_id) DO NOTHING
	`, productID, driverID)
	return errors.Wrapf(err, "link product %d to driver %d", productID, driverID)
}

// DriverIDSet returns the set of driver ids currently linked to a
// product, used by the Enumerator to diff against a freshly resolved set
// and decide whether a context reload is needed.
func (r *ProductDriverRepo) DriverIDSet(ctx context.Context, productID int64) (map[int64]bool, error) {
	var ids []int64
	if err := r.q.SelectContext(ctx, &ids, `SELECT driver_id FROM product_drivers WHERE product_id = ?`, productID); err != nil {
		return nil, errors.Wrapf(err, "driver id set for product %d", productID)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ReplaceLinks atomically replaces every driver link for productID with
// driverIDs.
func (r *ProductDriverRepo) ReplaceLinks(ctx context.Context, productID int64, driverIDs []int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM product_drivers WHERE product_id = ?`, productID); err != nil {
		return errors.Wrapf(err, "clear driver links for product %d", productID)
	}
	for _, id := range driverIDs {
		if err := r.Link(ctx, productID, id); err != nil {
			return err
		}
	}
	return nil
}

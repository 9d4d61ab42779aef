package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Product is a distinct combination of HWPID/HWPID version/OS
// version/DPA version the Enumerator has seen on the network. Devices
// sharing a Product share its driver set, avoiding a per-device driver
// reload.
type Product struct {
	ID           int64          `db:"id"`
	HWPID        int            `db:"hwpid"`
	HWPIDVersion int            `db:"hwpid_version"`
	OsVersion    string         `db:"os_version"`
	DpaVersion   string         `db:"dpa_version"`
	HandlerURL   sql.NullString `db:"handler_url"`
	HandlerHash  sql.NullString `db:"handler_hash"`
	Custom       bool           `db:"custom"`
}

// ProductRepo persists Product rows.
type ProductRepo struct{ q Queryer }

func (r *ProductRepo) WithTx(tx Queryer) *ProductRepo { return &ProductRepo{q: tx} }

// FindOrCreate returns the existing product matching p's identity tuple,
// or inserts a new one.
func (r *ProductRepo) FindOrCreate(ctx context.Context, p Product) (Product, error) {
	existing, err := r.byIdentity(ctx, p)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Product{}, err
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO products (hwpid, hwpid_version, os_version, dpa_version, handler_url, handler_hash, custom)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.HWPID, p.HWPIDVersion, p.OsVersion, p.DpaVersion, p.HandlerURL, p.HandlerHash, p.Custom)
	if err != nil {
		return Product{}, errors.Wrap(err, "insert product")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Product{}, errors.Wrap(err, "read inserted product id")
	}
	p.ID = id
	return p, nil
}

func (r *ProductRepo) byIdentity(ctx context.Context, p Product) (Product, error) {
	var found Product
	err := r.q.GetContext(ctx, &found, `
		SELECT * FROM products WHERE hwpid = ? AND hwpid_version = ? AND os_version = ? AND dpa_version = ?
	`, p.HWPID, p.HWPIDVersion, p.OsVersion, p.DpaVersion)
	return found, err
}

// ByID fetches a product by primary key.
func (r *ProductRepo) ByID(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.q.GetContext(ctx, &p, `SELECT * FROM products WHERE id = ?`, id)
	return p, errors.Wrapf(err, "product %d", id)
}

// All returns every known product.
func (r *ProductRepo) All(ctx context.Context) ([]Product, error) {
	var products []Product
	err := r.q.SelectContext(ctx, &products, `SELECT * FROM products ORDER BY id`)
	return products, errors.Wrap(err, "list products")
}

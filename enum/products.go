package enum

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

type productKey struct {
	hwpid, hwpidVersion   int
	osVersion, dpaVersion string
}

// reconcileProducts implements the Products transition: intern each
// unique identity tuple, resolve its driver set (non-certified fallback
// or exact/hwpid-0/version-floor catalog walk), and persist devices,
// products, and the product/driver link table inside one transaction.
// Any product whose loaded driver-id set diverges from the freshly
// computed set has its Driver Context Registry context reloaded after
// the transaction commits.
func (e *Enumerator) reconcileProducts(ctx context.Context, devices []deviceInfo, toDelete []uint16) error {
	grouped := map[productKey][]deviceInfo{}
	for _, d := range devices {
		key := productKey{d.hwpid, d.hwpidVersion, d.osVersion, d.dpaVersion}
		grouped[key] = append(grouped[key], d)
	}

	var reloadIDs []int64
	contextByAddress := map[uint16]int32{}

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		devices := e.store.Devices.WithTx(tx)
		products := e.store.Products.WithTx(tx)
		drivers := e.store.Drivers.WithTx(tx)
		links := e.store.ProductDrivers.WithTx(tx)

		for _, addr := range toDelete {
			if err := devices.DeleteByAddress(ctx, int(addr)); err != nil {
				return err
			}
		}

		for key, group := range grouped {
			product, err := products.FindOrCreate(ctx, store.Product{
				HWPID: key.hwpid, HWPIDVersion: key.hwpidVersion,
				OsVersion: key.osVersion, DpaVersion: key.dpaVersion,
				Custom: IsNonCertified(key.hwpid),
			})
			if err != nil {
				return err
			}

			resolved := e.resolveDrivers(key)
			driverIDs := make([]int64, 0, len(resolved))
			for _, d := range resolved {
				row, err := drivers.FindOrCreate(ctx, d)
				if err != nil {
					return err
				}
				driverIDs = append(driverIDs, row.ID)
			}

			before, err := links.DriverIDSet(ctx, product.ID)
			if err != nil {
				return err
			}
			if driverSetChanged(before, driverIDs) {
				reloadIDs = append(reloadIDs, product.ID)
			}
			if err := links.ReplaceLinks(ctx, product.ID, driverIDs); err != nil {
				return err
			}

			for _, d := range group {
				if _, err := devices.Upsert(ctx, store.Device{
					Address: int(d.address), MID: d.mid, HWPID: d.hwpid, HWPIDVersion: d.hwpidVersion,
					OsVersion: d.osVersion, OsBuild: d.osBuild, DpaVersion: d.dpaVersion,
					Discovered: d.discovered, ProductID: nullInt64(product.ID),
				}); err != nil {
					return err
				}
				contextByAddress[d.address] = int32(product.ID)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "reconcile products")
	}

	for addr, id := range contextByAddress {
		e.reg.MapAddressToContext(addr, id)
	}

	for _, id := range reloadIDs {
		if err := e.reloadProductContext(ctx, id); err != nil {
			e.log.WithError(err).WithField("product", id).Warn("driver context reload failed")
		}
	}
	return nil
}

func driverSetChanged(before map[int64]bool, after []int64) bool {
	if len(before) != len(after) {
		return true
	}
	for _, id := range after {
		if !before[id] {
			return true
		}
	}
	return false
}

func (e *Enumerator) reloadProductContext(ctx context.Context, productID int64) error {
	e.reg.Unload(int32(productID))
	drivers, err := e.store.Drivers.ByProduct(ctx, productID)
	if err != nil {
		return err
	}
	sources := make([]registry.Source, len(drivers))
	for i, d := range drivers {
		sources[i] = registry.Source{Name: d.Name, Code: d.DriverSource}
	}
	_, err = e.reg.LoadContext(int32(productID), sources)
	return err
}

// resolveDrivers implements the catalog walk: non-certified HWPIDs take
// whatever the catalog's LatestPerPeripheral returns for a nil
// peripheral list (the device's own peripheral list is not passed);
// certified HWPIDs look up an exact package, falling back to hwpid=0 at
// the same OS/DPA, then walking DPA versions down to MinDPAVersionFloor.
func (e *Enumerator) resolveDrivers(key productKey) []store.Driver {
	if IsNonCertified(key.hwpid) {
		return e.catalog.LatestPerPeripheral(nil)
	}
	if pkg, ok := e.catalog.PackageForExact(key.hwpid, key.hwpidVersion, key.osVersion, key.dpaVersion); ok {
		return pkg.Drivers
	}
	if pkg, ok := e.catalog.PackageForExact(0, key.hwpidVersion, key.osVersion, key.dpaVersion); ok {
		return pkg.Drivers
	}
	for v := dpaVersionValue(key.dpaVersion); v >= MinDPAVersionFloor; v-- {
		if pkg, ok := e.catalog.PackageForExact(key.hwpid, key.hwpidVersion, key.osVersion, dpaVersionString(v)); ok {
			return pkg.Drivers
		}
		if v == 0 {
			break
		}
	}
	e.log.WithField("hwpid", key.hwpid).Warn("no driver package found for product; skipping driver binding")
	return nil
}

// dpaVersionValue parses the "<major>.<minor hex>" string DpaVerAsString
// produces back into the packed 14-bit version value.
func dpaVersionValue(s string) uint16 {
	var major, minor uint16
	if _, err := fmt.Sscanf(s, "%X.%X", &major, &minor); err != nil {
		return 0
	}
	return major<<8 | minor
}

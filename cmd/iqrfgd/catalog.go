package main

import (
	"github.com/iqrf/iqrf-gateway-daemon-sub000/enum"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

// emptyCatalog is the placeholder enum.Catalog wired in when no
// Repository Cache client has been configured. Every lookup misses, so
// no product gets any driver bound (certified and non-certified HWPIDs
// alike), while enumeration itself still completes.
//
// The Repository Cache is an out-of-scope external collaborator; a real
// deployment replaces this with a client over the downloaded repository
// cache file, implementing the same enum.Catalog interface.
type emptyCatalog struct{}

func (emptyCatalog) PackageForExact(hwpid, hwpidVersion int, osVersion, dpaVersion string) (enum.Package, bool) {
	return enum.Package{}, false
}

func (emptyCatalog) LatestPerPeripheral(peripherals []int) []store.Driver {
	return nil
}

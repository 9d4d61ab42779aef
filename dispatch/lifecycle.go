package dispatch

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/enum"
)

// dbResetHandler implements iqrfDb_Reset: drop and recreate every
// catalog table, discarding all enumerated state.
func (d *Dispatcher) dbResetHandler(ctx context.Context, req Request) Envelope {
	if err := d.store.Reset(ctx); err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusConfigFailure, err.Error(), nil)
	}
	return okEnvelope(req.MType, req.MsgID, json.RawMessage(`{}`), nil)
}

// dbReloadDriversHandler implements iqrfDb_ReloadDrivers: rebuild every
// product's Driver Context Registry context from the database, without
// re-running the enumeration pass that discovers the products themselves.
func (d *Dispatcher) dbReloadDriversHandler(ctx context.Context, req Request) Envelope {
	if err := d.enumerator.ReloadDrivers(ctx); err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusConfigFailure, err.Error(), nil)
	}
	return okEnvelope(req.MType, req.MsgID, json.RawMessage(`{}`), nil)
}

type dbEnumerateParams struct {
	FullReenumerate bool  `json:"fullReenumerate,omitempty"`
	WithStandards   bool  `json:"standards,omitempty"`
	Addresses       []int `json:"deviceAddr,omitempty"`
}

// dbEnumerateHandler implements iqrfDb_Enumerate: run one enumeration
// pass synchronously and report its outcome. Unlike Invoke's background
// trigger path, a pass already running is not silently merged into; the
// caller gets StatusReadInProgress back instead.
func (d *Dispatcher) dbEnumerateHandler(ctx context.Context, req Request) Envelope {
	var p dbEnumerateParams
	_ = json.Unmarshal(req.Data, &p)

	err := d.enumerator.RunSync(ctx, enum.Params{
		FullReenumerate: p.FullReenumerate,
		WithStandards:   p.WithStandards,
		Addresses:       p.Addresses,
	})
	if errors.Is(err, enum.ErrAlreadyRunning) {
		return errorEnvelope(req.MType, req.MsgID, StatusReadInProgress, err.Error(), nil)
	}
	if err != nil {
		return errorEnvelope(req.MType, req.MsgID, StatusConfigFailure, err.Error(), nil)
	}
	return okEnvelope(req.MType, req.MsgID, json.RawMessage(`{}`), nil)
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// Sensor is one distinct sensor quantity definition (temperature,
// humidity, ...), shared across every device that reports it.
type Sensor struct {
	ID            int64  `db:"id"`
	SID           string `db:"sid"`
	Type          int    `db:"type"`
	Name          string `db:"name"`
	ShortName     string `db:"short_name"`
	Unit          string `db:"unit"`
	DecimalPlaces int    `db:"decimal_places"`
	Frcs          string `db:"frcs"` // comma-separated FRC command bytes this quantity supports
}

// SensorRepo persists Sensor definition rows.
type SensorRepo struct{ q Queryer }

func (r *SensorRepo) WithTx(tx Queryer) *SensorRepo { return &SensorRepo{q: tx} }

// FindOrCreate returns the existing sensor definition matching (sid,
// type), or inserts a new one.
func (r *SensorRepo) FindOrCreate(ctx context.Context, s Sensor) (Sensor, error) {
	var existing Sensor
	err := r.q.GetContext(ctx, &existing, `SELECT * FROM sensors WHERE sid = ? AND type = ?`, s.SID, s.Type)
	if err == nil {
		return existing, nil
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO sensors (sid, type, name, short_name, unit, decimal_places, frcs)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.SID, s.Type, s.Name, s.ShortName, s.Unit, s.DecimalPlaces, s.Frcs)
	if err != nil {
		return Sensor{}, errors.Wrap(err, "insert sensor definition")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Sensor{}, errors.Wrap(err, "read inserted sensor id")
	}
	s.ID = id
	return s, nil
}

// ByType returns every sensor definition of the given standard type id.
func (r *SensorRepo) ByType(ctx context.Context, sensorType int) ([]Sensor, error) {
	var sensors []Sensor
	err := r.q.SelectContext(ctx, &sensors, `SELECT * FROM sensors WHERE type = ? ORDER BY id`, sensorType)
	return sensors, errors.Wrapf(err, "sensors of type %d", sensorType)
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// MigrationRepo tracks which embedded schema migrations have been
// applied.
type MigrationRepo struct{ q Queryer }

// Applied returns the set of migration filenames already recorded.
func (r *MigrationRepo) Applied(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := r.q.SelectContext(ctx, &versions, `SELECT version FROM migrations`); err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"

	"github.com/gofrs/flock"

	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
)

// CreateIndex explicitly creates name, for callers (the composition root's
// index-management surface) that want to create an empty index ahead of
// the first bundle rather than relying on ingest-time auto-creation.
func (p *Pipeline) CreateIndex(ctx context.Context, name string) error {
	return p.ensureIndex(ctx, name, p.dim)
}

// ensureIndex creates the metadata row, sparse index, and dense
// collection for name if none exists yet. Concurrent ingestions racing
// to create the same fresh index coordinate through a cross-process file
// lock so the three creates happen exactly once, as a unit.
func (p *Pipeline) ensureIndex(ctx context.Context, name string, dim int) error {
	lockPath := filepath.Join(p.dataDir, name+".create.lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return retrievalerrors.InternalError("acquire index creation lock", err)
	}
	defer fl.Unlock()

	_, err := p.metadata.IndexGet(ctx, name)
	if err == nil {
		return nil // already exists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return retrievalerrors.InternalError("look up index", err)
	}

	if err := p.sparse.Create(name); err != nil {
		return retrievalerrors.BackendFailureError("create sparse index", err)
	}
	if err := p.dense.Create(name, dim); err != nil {
		_ = p.sparse.Delete(name)
		return retrievalerrors.BackendFailureError("create dense collection", err)
	}

	if err := p.metadata.IndexAdd(ctx, name, nil); err != nil {
		_ = p.sparse.Delete(name)
		_ = p.dense.Delete(name)
		return retrievalerrors.InternalError("record index in metadata", err)
	}
	return nil
}

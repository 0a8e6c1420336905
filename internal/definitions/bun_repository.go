package definitions

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const definitionNamespace = "workflow_definition"

// BunRepository persists workflow definitions through bun. Graph publishes run
// inside one transaction so readers never observe two active definitions for
// the same scope.
//
// Lookups go through raw select processors, so the cache keys are built here
// from the lookup parameters rather than by the repository decorator, and
// every write invalidates the namespace by prefix.
type BunRepository struct {
	db            *bun.DB
	defs          repository.Repository[*Definition]
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	cachePrefix   string
}

// NewBunRepository constructs a repository without read caching.
func NewBunRepository(db *bun.DB) *BunRepository {
	return NewBunRepositoryWithCache(db, nil, nil)
}

// NewBunRepositoryWithCache constructs a repository with optional caching for
// the hot published-definition lookup.
func NewBunRepositoryWithCache(db *bun.DB, cacheService cache.CacheService, keySerializer cache.KeySerializer) *BunRepository {
	r := &BunRepository{
		db:   db,
		defs: NewDefinitionRepository(db),
	}
	if cacheService != nil && keySerializer != nil {
		r.cacheService = cacheService
		r.keySerializer = keySerializer
		r.cachePrefix = definitionNamespace + cache.KeySeparator
	}
	return r
}

// Publish archives the scope's active definition, assigns the next version,
// and inserts the full graph, all in one transaction.
func (r *BunRepository) Publish(ctx context.Context, record *Definition) (*Definition, error) {
	if r.db == nil {
		return nil, fmt.Errorf("definition repository: database not configured")
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var maxVersion int
		versionQuery := tx.NewSelect().
			Model((*Definition)(nil)).
			ColumnExpr("COALESCE(MAX(version), 0)").
			Where("?TableAlias.tenant_id = ?", record.TenantID).
			Where("?TableAlias.origin = ?", record.Origin)
		versionQuery = scopeWhere(versionQuery, record.ContextKind, record.ContextID)
		if err := versionQuery.Scan(ctx, &maxVersion); err != nil {
			return fmt.Errorf("resolve next version: %w", err)
		}
		record.Version = maxVersion + 1

		archive := tx.NewUpdate().
			Model((*Definition)(nil)).
			Set("status = ?", domain.DefinitionStatusArchived).
			Set("active = ?", false).
			Set("updated_at = ?", time.Now().UTC()).
			Where("?TableAlias.tenant_id = ?", record.TenantID).
			Where("?TableAlias.origin = ?", record.Origin).
			Where("?TableAlias.active = ?", true)
		archive = scopeWhereUpdate(archive, record.ContextKind, record.ContextID)
		if _, err := archive.Exec(ctx); err != nil {
			return fmt.Errorf("archive previous definition: %w", err)
		}

		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return fmt.Errorf("insert definition: %w", err)
		}
		if len(record.States) > 0 {
			if _, err := tx.NewInsert().Model(&record.States).Exec(ctx); err != nil {
				return fmt.Errorf("insert states: %w", err)
			}
		}
		if len(record.Transitions) > 0 {
			if _, err := tx.NewInsert().Model(&record.Transitions).Exec(ctx); err != nil {
				return fmt.Errorf("insert transitions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.invalidateCache(ctx); err != nil {
		return nil, fmt.Errorf("invalidate definition cache: %w", err)
	}
	return r.GetByID(ctx, record.ID)
}

// GetByID loads a definition with its states and transitions.
func (r *BunRepository) GetByID(ctx context.Context, id uuid.UUID) (*Definition, error) {
	return cachedFetch(ctx, r, "get_by_id", []any{id.String()}, func(ctx context.Context) (*Definition, error) {
		records, _, err := r.defs.List(ctx,
			repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
				return withGraph(q).Where("?TableAlias.id = ?", id).Limit(1)
			}),
		)
		if err != nil {
			return nil, mapRepositoryError(err, "workflow_definition", id.String())
		}
		if len(records) == 0 {
			return nil, &NotFoundError{Resource: "workflow_definition", Key: id.String()}
		}
		return records[0], nil
	})
}

// GetPublished returns the scope's single published+active definition.
func (r *BunRepository) GetPublished(ctx context.Context, tenantID uuid.UUID, origin string, scope Scope) (*Definition, error) {
	args := []any{tenantID.String(), origin, scopeKindKey(scope.ContextKind), scopeIDKey(scope.ContextID)}
	return cachedFetch(ctx, r, "get_published", args, func(ctx context.Context) (*Definition, error) {
		records, _, err := r.defs.List(ctx,
			repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
				q = withGraph(q).
					Where("?TableAlias.tenant_id = ?", tenantID).
					Where("?TableAlias.origin = ?", origin).
					Where("?TableAlias.status = ?", domain.DefinitionStatusPublished).
					Where("?TableAlias.active = ?", true)
				return scopeWhere(q, scope.ContextKind, scope.ContextID).Limit(1)
			}),
		)
		if err != nil {
			return nil, mapRepositoryError(err, "workflow_definition", origin)
		}
		if len(records) == 0 {
			return nil, &NotFoundError{Resource: "workflow_definition", Key: origin}
		}
		return records[0], nil
	})
}

// List returns every version for (tenant, origin), newest first.
func (r *BunRepository) List(ctx context.Context, tenantID uuid.UUID, origin string) ([]*Definition, error) {
	return cachedFetch(ctx, r, "list", []any{tenantID.String(), origin}, func(ctx context.Context) ([]*Definition, error) {
		records, _, err := r.defs.List(ctx,
			repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.
					Where("?TableAlias.tenant_id = ?", tenantID).
					Where("?TableAlias.origin = ?", origin).
					Order("version DESC")
			}),
		)
		if err != nil {
			return nil, mapRepositoryError(err, "workflow_definition", origin)
		}
		return records, nil
	})
}

// Update persists lifecycle flips on a definition row.
func (r *BunRepository) Update(ctx context.Context, record *Definition) (*Definition, error) {
	updated, err := r.defs.Update(ctx, record)
	if err != nil {
		return nil, mapRepositoryError(err, "workflow_definition", record.ID.String())
	}
	if err := r.invalidateCache(ctx); err != nil {
		return nil, fmt.Errorf("invalidate definition cache: %w", err)
	}
	return updated, nil
}

func (r *BunRepository) invalidateCache(ctx context.Context) error {
	if r.cacheService == nil || r.cachePrefix == "" {
		return nil
	}
	return r.cacheService.DeleteByPrefix(ctx, r.cachePrefix)
}

// cachedFetch routes a lookup through the cache service when one is
// configured. The key carries the method name and the scalar lookup
// parameters, never the query closures.
func cachedFetch[T any](ctx context.Context, r *BunRepository, method string, args []any, fetch cache.FetchFn[T]) (T, error) {
	if r.cacheService == nil {
		return fetch(ctx)
	}
	key := r.cachePrefix + r.keySerializer.SerializeKey(method, args...)
	return cache.GetOrFetch(ctx, r.cacheService, key, fetch)
}

func scopeKindKey(kind *string) string {
	if kind == nil {
		return "global"
	}
	return *kind
}

func scopeIDKey(id *uuid.UUID) string {
	if id == nil {
		return "global"
	}
	return id.String()
}

func withGraph(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("States", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("position ASC")
		}).
		Relation("Transitions", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("position ASC")
		})
}

func scopeWhere(q *bun.SelectQuery, contextKind *string, contextID *uuid.UUID) *bun.SelectQuery {
	if contextKind == nil {
		q = q.Where("?TableAlias.context_kind IS NULL")
	} else {
		q = q.Where("?TableAlias.context_kind = ?", *contextKind)
	}
	if contextID == nil {
		q = q.Where("?TableAlias.context_id IS NULL")
	} else {
		q = q.Where("?TableAlias.context_id = ?", *contextID)
	}
	return q
}

func scopeWhereUpdate(q *bun.UpdateQuery, contextKind *string, contextID *uuid.UUID) *bun.UpdateQuery {
	if contextKind == nil {
		q = q.Where("?TableAlias.context_kind IS NULL")
	} else {
		q = q.Where("?TableAlias.context_kind = ?", *contextKind)
	}
	if contextID == nil {
		q = q.Where("?TableAlias.context_id IS NULL")
	} else {
		q = q.Where("?TableAlias.context_id = ?", *contextID)
	}
	return q
}

func mapRepositoryError(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
		return &NotFoundError{
			Resource: resource,
			Key:      key,
		}
	}
	return fmt.Errorf("%s repository error: %w", resource, err)
}

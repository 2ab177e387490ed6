package repositories

import (
	"context"
	"iter"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// EntityRepository is the typed entity store client for one record kind. Every
// write is a single-entity operation; Replace succeeds only while the stored
// version still equals expected.
type EntityRepository[T any] interface {
	Get(ctx context.Context, id string) (store.Versioned[T], error)
	Create(ctx context.Context, entity T) (store.Versioned[T], error)
	Replace(ctx context.Context, entity T, expected store.Version) (store.Versioned[T], error)
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context) iter.Seq2[store.Versioned[T], error]
}

type ProductRepository = EntityRepository[domain.Product]

type OrderRepository = EntityRepository[domain.Order]

type CustomerRepository = EntityRepository[domain.Customer]

// HealthRepository reports on the dependencies behind the API.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

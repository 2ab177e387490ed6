package services

import (
	"errors"
	"fmt"

	"github.com/retailops/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals a blank product id or a non-positive quantity.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInsufficientStock indicates the product cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrStockConflict indicates the product changed between read and write. Retryable.
	ErrStockConflict = errors.New("inventory: stock conflict")
	// ErrInventoryUnavailable indicates the entity store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: store unavailable")

	// ErrOrderInvalidInput signals malformed order input.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates the order changed concurrently and retries were exhausted.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the entity store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")

	// ErrCatalogInvalidInput signals malformed product or customer input.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCustomerNotFound indicates the customer does not exist.
	ErrCustomerNotFound = errors.New("catalog: customer not found")
	// ErrCatalogConflict indicates a product or customer changed concurrently.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the entity store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: store unavailable")
)

// repositoryErrorKinds maps the categorised repository failures onto one service's sentinels.
type repositoryErrorKinds struct {
	notFound    error
	conflict    error
	unavailable error
}

func (k repositoryErrorKinds) wrap(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", k.notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", k.conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", k.unavailable, err)
		}
	}
	return err
}

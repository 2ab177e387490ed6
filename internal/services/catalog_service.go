package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
	"github.com/retailops/api/internal/repositories"
)

var (
	productErrors = repositoryErrorKinds{
		notFound:    ErrProductNotFound,
		conflict:    ErrCatalogConflict,
		unavailable: ErrCatalogUnavailable,
	}
	customerErrors = repositoryErrorKinds{
		notFound:    ErrCustomerNotFound,
		conflict:    ErrCatalogConflict,
		unavailable: ErrCatalogUnavailable,
	}
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Customers   repositories.CustomerRepository
	Events      EventNotifier
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	customers repositories.CustomerRepository
	events    EventNotifier
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("catalog service: customer repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products:  deps.Products,
		customers: deps.Customers,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	if err := validateProduct(cmd); err != nil {
		return domain.Product{}, err
	}
	if cmd.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}
	product := domain.Product{
		ID:          s.newID(),
		Name:        strings.TrimSpace(cmd.Name),
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		Stock:       cmd.Stock,
	}
	created, err := s.products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityCreated, product.ID, "", "Product created")
	return created.Entity, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	current, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	return current.Entity, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := store.Collect(s.products.Scan(ctx))
	if err != nil {
		return nil, productErrors.wrap(err)
	}
	return products, nil
}

// UpdateProduct edits descriptive fields. Stock is carried over from the stored version; only
// the inventory ledger changes it.
func (s *catalogService) UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (domain.Product, error) {
	if err := validateProduct(cmd); err != nil {
		return domain.Product{}, err
	}
	current, err := s.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	product := current.Entity
	product.Name = strings.TrimSpace(cmd.Name)
	product.Description = strings.TrimSpace(cmd.Description)
	product.Price = cmd.Price

	saved, err := s.products.Replace(ctx, product, current.Version)
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityUpdated, product.ID, "", "Product updated")
	return saved.Entity, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return productErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityDeleted, productID, "", "Entity deleted")
	return nil
}

// AttachProductImage records where the product's image was stored.
func (s *catalogService) AttachProductImage(ctx context.Context, productID string, imageRef string) (domain.Product, error) {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return domain.Product{}, fmt.Errorf("%w: image reference is required", ErrCatalogInvalidInput)
	}
	current, err := s.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	product := current.Entity
	product.ImageRef = imageRef

	saved, err := s.products.Replace(ctx, product, current.Version)
	if err != nil {
		return domain.Product{}, productErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventProductImageUploaded, product.ID, domain.PartitionProduct,
		fmt.Sprintf("Image uploaded for product %s (blob: %s)", product.ID, imageRef))
	return saved.Entity, nil
}

func (s *catalogService) CreateCustomer(ctx context.Context, cmd UpsertCustomerCommand) (domain.Customer, error) {
	if err := validateCustomer(cmd); err != nil {
		return domain.Customer{}, err
	}
	customer := domain.Customer{
		ID:    s.newID(),
		Name:  strings.TrimSpace(cmd.Name),
		Email: strings.TrimSpace(cmd.Email),
		Phone: strings.TrimSpace(cmd.Phone),
	}
	created, err := s.customers.Create(ctx, customer)
	if err != nil {
		return domain.Customer{}, customerErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityCreated, customer.ID, "", "Customer created")
	return created.Entity, nil
}

func (s *catalogService) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer id is required", ErrCatalogInvalidInput)
	}
	current, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, customerErrors.wrap(err)
	}
	return current.Entity, nil
}

func (s *catalogService) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := store.Collect(s.customers.Scan(ctx))
	if err != nil {
		return nil, customerErrors.wrap(err)
	}
	return customers, nil
}

func (s *catalogService) UpdateCustomer(ctx context.Context, customerID string, cmd UpsertCustomerCommand) (domain.Customer, error) {
	if err := validateCustomer(cmd); err != nil {
		return domain.Customer{}, err
	}
	current, err := s.customers.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, customerErrors.wrap(err)
	}
	customer := current.Entity
	customer.Name = strings.TrimSpace(cmd.Name)
	customer.Email = strings.TrimSpace(cmd.Email)
	customer.Phone = strings.TrimSpace(cmd.Phone)

	saved, err := s.customers.Replace(ctx, customer, current.Version)
	if err != nil {
		return domain.Customer{}, customerErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityUpdated, customer.ID, "", "Customer updated")
	return saved.Entity, nil
}

func (s *catalogService) DeleteCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrCatalogInvalidInput)
	}
	if err := s.customers.Delete(ctx, customerID); err != nil {
		return customerErrors.wrap(err)
	}
	s.publishEvent(ctx, domain.EventEntityDeleted, customerID, "", "Entity deleted")
	return nil
}

func (s *catalogService) OrderFormOptions(ctx context.Context) (OrderFormOptions, error) {
	customers, err := s.ListCustomers(ctx)
	if err != nil {
		return OrderFormOptions{}, err
	}
	products, err := s.ListProducts(ctx)
	if err != nil {
		return OrderFormOptions{}, err
	}
	return OrderFormOptions{Customers: customers, Products: products}, nil
}

func (s *catalogService) publishEvent(ctx context.Context, kind domain.EventKind, entityID, relatedID, message string) {
	publishLifecycleEvent(ctx, s.events, s.logger, s.clock, domain.LifecycleEvent{
		Kind:      kind,
		EntityID:  entityID,
		RelatedID: relatedID,
		Message:   message,
	})
}

func validateProduct(cmd UpsertProductCommand) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	return nil
}

func validateCustomer(cmd UpsertCustomerCommand) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrCatalogInvalidInput)
	}
	return nil
}

package repositories

import (
	"fmt"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/platform/store"
)

// Field names persisted for each record kind. Every field is always written so
// a full replace leaves no stale values behind.
const (
	fieldName        = "Name"
	fieldDescription = "Description"
	fieldPrice       = "Price"
	fieldStock       = "StockLevel"
	fieldImageRef    = "ImageUrl"
	fieldEmail       = "Email"
	fieldPhone       = "Phone"
	fieldCustomerID  = "CustomerId"
	fieldProductID   = "ProductId"
	fieldQuantity    = "Quantity"
	fieldStatus      = "Status"
	fieldCreatedOn   = "OrderDate"
	fieldUpdatedOn   = "UpdatedOn"
)

// ProductSchema maps products onto the PRODUCT partition of table. The price is
// stored as its canonical decimal string.
func ProductSchema(table string) store.Schema[domain.Product] {
	return store.Schema[domain.Product]{
		Table:     table,
		Partition: domain.PartitionProduct,
		Key:       func(p domain.Product) string { return p.ID },
		Encode: func(p domain.Product) store.Record {
			return store.Record{
				fieldName:        p.Name,
				fieldDescription: p.Description,
				fieldPrice:       p.Price.String(),
				fieldStock:       int64(p.Stock),
				fieldImageRef:    p.ImageRef,
			}
		},
		Decode: func(row string, rec store.Record) (domain.Product, error) {
			price, err := rec.Decimal(fieldPrice)
			if err != nil {
				return domain.Product{}, err
			}
			stock, err := rec.Int(fieldStock)
			if err != nil {
				return domain.Product{}, err
			}
			return domain.Product{
				ID:          row,
				Name:        rec.String(fieldName),
				Description: rec.String(fieldDescription),
				Price:       price,
				Stock:       stock,
				ImageRef:    rec.String(fieldImageRef),
			}, nil
		},
	}
}

// CustomerSchema maps customers onto the CUSTOMER partition of table.
func CustomerSchema(table string) store.Schema[domain.Customer] {
	return store.Schema[domain.Customer]{
		Table:     table,
		Partition: domain.PartitionCustomer,
		Key:       func(c domain.Customer) string { return c.ID },
		Encode: func(c domain.Customer) store.Record {
			return store.Record{
				fieldName:  c.Name,
				fieldEmail: c.Email,
				fieldPhone: c.Phone,
			}
		},
		Decode: func(row string, rec store.Record) (domain.Customer, error) {
			return domain.Customer{
				ID:    row,
				Name:  rec.String(fieldName),
				Email: rec.String(fieldEmail),
				Phone: rec.String(fieldPhone),
			}, nil
		},
	}
}

// OrderSchema maps orders onto the ORDER partition of table. Display names are
// never persisted.
func OrderSchema(table string) store.Schema[domain.Order] {
	return store.Schema[domain.Order]{
		Table:     table,
		Partition: domain.PartitionOrder,
		Key:       func(o domain.Order) string { return o.ID },
		Encode: func(o domain.Order) store.Record {
			return store.Record{
				fieldCustomerID: o.CustomerID,
				fieldProductID:  o.ProductID,
				fieldQuantity:   int64(o.Quantity),
				fieldStatus:     string(o.Status),
				fieldCreatedOn:  o.CreatedOn.UTC(),
				fieldUpdatedOn:  o.UpdatedOn.UTC(),
			}
		},
		Decode: func(row string, rec store.Record) (domain.Order, error) {
			qty, err := rec.Int(fieldQuantity)
			if err != nil {
				return domain.Order{}, err
			}
			status, ok := domain.ParseOrderStatus(rec.String(fieldStatus))
			if !ok {
				return domain.Order{}, fmt.Errorf("order %s: unknown status %q", row, rec.String(fieldStatus))
			}
			created, err := rec.Time(fieldCreatedOn)
			if err != nil {
				return domain.Order{}, err
			}
			updated, err := rec.Time(fieldUpdatedOn)
			if err != nil {
				return domain.Order{}, err
			}
			return domain.Order{
				ID:         row,
				CustomerID: rec.String(fieldCustomerID),
				ProductID:  rec.String(fieldProductID),
				Quantity:   qty,
				Status:     status,
				CreatedOn:  created,
				UpdatedOn:  updated,
			}, nil
		},
	}
}

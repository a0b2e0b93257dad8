package models

import (
	"strconv"
	"time"
)

// Order is one synthetic order row as staged in the bucket.
type Order struct {
	OrderID            int       `json:"order_id" bson:"order_id"`
	OrderTimestamp     time.Time `json:"order_timestamp" bson:"order_timestamp"`
	CustomerID         int       `json:"customer_id" bson:"customer_id"`
	ProductID          int       `json:"product_id" bson:"product_id"`
	Quantity           int       `json:"quantity" bson:"quantity"`
	UnitPrice          float64   `json:"unit_price" bson:"unit_price"`
	Location           string    `json:"location" bson:"location"`
	ProductDescription string    `json:"product_description" bson:"product_description"`
}

// Column describes one column of the orders layout.
type Column struct {
	Name string
	// WarehouseType is the DuckDB type used when bootstrapping the target table.
	WarehouseType string
}

// OrderColumns is the header order of every staged orders file.
var OrderColumns = []Column{
	{Name: "order_id", WarehouseType: "BIGINT"},
	{Name: "order_timestamp", WarehouseType: "TIMESTAMP"},
	{Name: "customer_id", WarehouseType: "BIGINT"},
	{Name: "product_id", WarehouseType: "BIGINT"},
	{Name: "quantity", WarehouseType: "BIGINT"},
	{Name: "unit_price", WarehouseType: "DOUBLE"},
	{Name: "location", WarehouseType: "VARCHAR"},
	{Name: "product_description", WarehouseType: "VARCHAR"},
}

// TimestampLayout is how order timestamps are written to CSV.
const TimestampLayout = "2006-01-02 15:04:05"

func OrderHeader() []string {
	header := make([]string, len(OrderColumns))
	for i, c := range OrderColumns {
		header[i] = c.Name
	}
	return header
}

// Record renders the order in OrderColumns order.
func (o Order) Record() []string {
	return []string{
		strconv.Itoa(o.OrderID),
		o.OrderTimestamp.UTC().Format(TimestampLayout),
		strconv.Itoa(o.CustomerID),
		strconv.Itoa(o.ProductID),
		strconv.Itoa(o.Quantity),
		strconv.FormatFloat(o.UnitPrice, 'f', 2, 64),
		o.Location,
		o.ProductDescription,
	}
}

// Package orders provides the pipeline for orders exports.
package orders

import (
	"context"
	"regexp"

	"cloud.google.com/go/bigquery"
	"golang.org/x/xerrors"

	"go.nownabe.dev/bqpipeline"
)

// Columns of orders exports.
const (
	OrderID        = "OrderID"
	CustomerID     = "CustomerID"
	EmployeeID     = "EmployeeID"
	OrderDate      = "OrderDate"
	ShippedDate    = "ShippedDate"
	Freight        = "Freight"
	ShipName       = "ShipName"
	ShipAddress    = "ShipAddress"
	ShipCity       = "ShipCity"
	ShipRegion     = "ShipRegion"
	ShipPostalCode = "ShipPostalCode"
	ShipCountry    = "ShipCountry"
)

const (
	// addressNumberRE matches the house number after a comma ("Rua Orós, 92"),
	// at the beginning ("123 Main St") or at the end ("Av. Brasil 442").
	addressNumberRE  = `,\s*(\d+)|^\s*(\d+)\b|\s(\d+)\s*$`
	addressNumberCut = `,\s*\d+|^\s*\d+(?:\s+|$)|\s+\d+\s*$`
)

// TrustedQuery transforms raw orders into trusted orders shipped to Brazil.
var TrustedQuery = bqpipeline.Query{
	Select: []bqpipeline.Projection{
		bqpipeline.As(bqpipeline.Int64(bqpipeline.Col(OrderID)), "order_id", bigquery.IntegerFieldType),
		bqpipeline.As(bqpipeline.String(bqpipeline.Col(CustomerID)), "customer_id", bigquery.StringFieldType),
		bqpipeline.As(bqpipeline.Int64(bqpipeline.Col(EmployeeID)), "employee_id", bigquery.IntegerFieldType),
		bqpipeline.As(bqpipeline.TruncMonth(bqpipeline.Col(OrderDate)), "order_reference_month", bigquery.DateFieldType),
		bqpipeline.As(bqpipeline.Timestamp(bqpipeline.Col(ShippedDate)), "shipped_date", bigquery.TimestampFieldType),
		bqpipeline.As(bqpipeline.Float64(bqpipeline.Col(Freight)), "cost_freight", bigquery.FloatFieldType),
		bqpipeline.As(bqpipeline.Col(ShipName), "ship_name", bigquery.StringFieldType),
		bqpipeline.As(
			bqpipeline.NullIf(bqpipeline.Trim(bqpipeline.RegexpReplace(bqpipeline.Col(ShipAddress), addressNumberCut, "")), ""),
			"order_delivery_address", bigquery.StringFieldType),
		bqpipeline.As(
			bqpipeline.Int64(bqpipeline.RegexpExtract(bqpipeline.Col(ShipAddress), addressNumberRE)),
			"order_delivery_number", bigquery.IntegerFieldType),
		bqpipeline.As(bqpipeline.Col(ShipCity), "order_delivery_city", bigquery.StringFieldType),
		bqpipeline.As(bqpipeline.Col(ShipRegion), "order_delivery_region", bigquery.StringFieldType),
		bqpipeline.As(bqpipeline.String(bqpipeline.Col(ShipPostalCode)), "order_delivery_postal_code", bigquery.StringFieldType),
		bqpipeline.As(bqpipeline.Replace(bqpipeline.Col(ShipCountry), "z", "s"), "order_delivery_country", bigquery.StringFieldType),
	},
	Where: bqpipeline.Eq(bqpipeline.Col(ShipCountry), "Brazil"),
}

// Transform applies TrustedQuery to raw orders.
func Transform(_ context.Context, raw *bqpipeline.Dataset) (*bqpipeline.Dataset, error) {
	ds, err := TrustedQuery.Run(raw)
	if err != nil {
		return nil, xerrors.Errorf("failed to transform orders: %w", err)
	}

	return ds, nil
}

// Tables are destination tables of orders.
type Tables struct {
	Project string
	Dataset string
	Raw     string
	Trusted string
}

// Pipeline builds a pipeline of orders.
// pattern selects Cloud Storage objects for Handle and may be empty.
func Pipeline(name, pattern string, t Tables, notifier bqpipeline.Notifier) *bqpipeline.Pipeline {
	p := &bqpipeline.Pipeline{
		Name:    name,
		Project: t.Project,
		Dataset: t.Dataset,

		Raw:     bqpipeline.Stage{Table: t.Raw, ChecksSubpath: "raw"},
		Trusted: bqpipeline.Stage{Table: t.Trusted, ChecksSubpath: "trusted"},

		WriteDisposition: string(bigquery.WriteTruncate),
		Transformer:      Transform,
		Notifier:         notifier,
	}

	if pattern != "" {
		p.Pattern = regexp.MustCompile(pattern)
	}

	return p
}

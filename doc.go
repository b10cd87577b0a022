/*

Package bqpipeline is a small batch pipeline framework
to load files into raw and trusted BigQuery tables with data quality checks.

A pipeline runs fixed steps and stops at the first failure:

	1. read the source file (local path or gs:// URI)
	2. load it into the raw table
	3. validate the raw table
	4. extract the raw table from BigQuery
	5. transform it
	6. load the result into the trusted table
	7. validate the trusted table

Getting started

	package main

	import (
		"context"

		"cloud.google.com/go/bigquery"

		"go.nownabe.dev/bqpipeline"
		"go.nownabe.dev/bqpipeline/contrib/orders"
		"go.nownabe.dev/bqpipeline/scan"
	)

	func main() {
		ctx := context.Background()

		cred, err := bqpipeline.CredentialsFromEnv()
		if err != nil {
			panic(err)
		}

		client, err := bigquery.NewClient(ctx, "my-project", cred)
		if err != nil {
			panic(err)
		}
		defer client.Close()

		w := bqpipeline.NewBigQueryWarehouse(client, "US")
		s := &scan.Scanner{Root: "soda", DataSource: "bigquery_soda", Querier: w}

		runner, err := bqpipeline.New(w, bqpipeline.NewSourceReader(cred), s, bqpipeline.WithPrettyLogging())
		if err != nil {
			panic(err)
		}

		p := orders.Pipeline("orders", "", orders.Tables{
			Project: "my-project",
			Dataset: "sales",
			Raw:     "orders_raw",
			Trusted: "orders_trusted",
		}, nil)
		p.Source = "input_data/orders.csv"

		if err := runner.Run(ctx, p); err != nil {
			panic(err)
		}
	}

Transformers are usually written with Query, a declarative SELECT over a Dataset:

	q := bqpipeline.Query{
		Select: []bqpipeline.Projection{
			bqpipeline.As(bqpipeline.Col("OrderID"), "order_id", bigquery.IntegerFieldType),
		},
		Where: bqpipeline.Eq(bqpipeline.Col("ShipCountry"), "Brazil"),
	}

*/
package bqpipeline

// odoograph/example/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
	"github.com/ilcreatore32/odoograph/store"
)

func main() {
	// Load Odoo connection details from environment variables.
	// DO NOT hardcode credentials in production applications.
	odooURL := os.Getenv("ODOO_URL")
	odooDB := os.Getenv("ODOO_DB")
	odooUsername := os.Getenv("ODOO_USERNAME")
	odooPassword := os.Getenv("ODOO_PASSWORD")

	if odooURL == "" || odooDB == "" || odooUsername == "" || odooPassword == "" {
		log.Fatalf("Error: Environment variables ODOO_URL, ODOO_DB, ODOO_USERNAME, and ODOO_PASSWORD must be set.\n" +
			"Please set them before running the example, e.g.:\n" +
			"export ODOO_URL=\"https://your-odoo-instance.com\"\n" +
			"export ODOO_DB=\"your_odoo_database\"\n" +
			"export ODOO_USERNAME=\"your_odoo_user\"\n" +
			"export ODOO_PASSWORD=\"your_odoo_password\"",
		)
	}

	appLogger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create application Zap logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	client, err := odoograph.New(
		odooURL,
		odooDB,
		odooUsername,
		odooPassword,
		odoograph.WithLoggerEnv(odoograph.EnvDevelopment),
		odoograph.WithAuthTimeout(3*time.Hour),
	)
	if err != nil {
		appLogger.Fatal("Failed to initialize Odoo client", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// --- Build the schema registry from fields_get ---
	reg, err := store.Introspect(ctx, client, "sale.order", "sale.order.line", "res.partner", "product.product")
	if err != nil {
		appLogger.Fatal("Failed to introspect models", zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		// product.product points at models we did not introspect; those
		// relations come out as {"id","name"} pairs.
		appLogger.Warn("Registry has undeclared targets", zap.Error(err))
	}

	p := projector.New(reg,
		projector.WithLookup(store.NewCached(store.NewOdoo(client, reg, appLogger))),
		projector.WithLogger(appLogger),
	)

	fmt.Println("\n--- Latest confirmed sale order, expanded two hops ---")
	schema, _ := reg.Schema("sale.order")
	fields := append(odoograph.Fields{"display_name"}, schema.FieldNames()...)
	rows, err := client.SearchRead(ctx, odoograph.ModelSaleOrder,
		odoograph.Domain{{"state", "=", "sale"}},
		fields,
		&odoograph.Options{Limit: 1, Order: "date_order desc"},
	)
	if err != nil {
		if errors.Is(err, odoograph.ErrAuthenticationFailed) {
			fmt.Println(">> Application Error: Authentication failed! Please check Odoo credentials.")
		}
		appLogger.Fatal("Error reading sale orders", zap.Error(err))
	}
	if len(rows) == 0 {
		fmt.Println(">> No confirmed sale orders found.")
		return
	}

	projection := projector.ParseProjection([]string{
		"partner_id.name",
		"partner_id.email",
		"order_line.product_id.name",
		"order_line.product_uom_qty",
		"order_line.price_subtotal",
	})
	out, err := p.ProjectFlatResult(ctx, projector.Kind(odoograph.ModelSaleOrder), rows[0], 2, projection)
	if err != nil {
		appLogger.Fatal("Error projecting sale order", zap.Error(err))
	}
	printJSON(out)

	fmt.Println("\n--- The same order at depth 0 ---")
	out, err = p.ProjectFlatResult(ctx, projector.Kind(odoograph.ModelSaleOrder), rows[0], 0, nil)
	if err != nil {
		appLogger.Fatal("Error projecting sale order", zap.Error(err))
	}
	printJSON(out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf(">> Application Error: %v\n", err)
	}
}

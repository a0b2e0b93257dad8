package generate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/orderload/pkg/database"
	apperrors "github.com/BartekS5/orderload/pkg/errors"
	"github.com/BartekS5/orderload/pkg/logger"
	"github.com/BartekS5/orderload/pkg/models"
)

var (
	firstNames = []string{
		"Anna", "Piotr", "Marta", "Jakub", "Ewa", "Tomasz", "Lena", "Oskar",
		"Maria", "Jonas", "Sofia", "Liam", "Clara", "Mateo", "Nora", "Felix",
	}
	lastNames = []string{
		"Nowak", "Kowalski", "Wisniewska", "Novak", "Muller", "Schmidt",
		"Silva", "Garcia", "Hansen", "Murphy", "Brown", "Dvorak",
	}
)

// Customers returns customers with ids 1..n and signup dates within the last
// two years. Emails are unique within the batch.
func (g *Generator) Customers(n int) []models.Customer {
	today := g.now().UTC().Truncate(24 * time.Hour)
	out := make([]models.Customer, n)
	for i := range out {
		id := i + 1
		first := firstNames[g.rng.Intn(len(firstNames))]
		last := lastNames[g.rng.Intn(len(lastNames))]
		out[i] = models.Customer{
			CustomerID: id,
			FirstName:  first,
			LastName:   last,
			Email:      fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), id),
			SignupDate: today.AddDate(0, 0, -g.rng.Intn(2*365+1)),
		}
	}
	return out
}

// EnsureCustomerTable creates schema and the customer dimension if absent.
func EnsureCustomerTable(ctx context.Context, db *sql.DB, d database.Dialect, schema string) error {
	defs := strings.Join([]string{
		d.QuoteIdent("customer_id") + " BIGINT NOT NULL PRIMARY KEY",
		d.QuoteIdent("first_name") + " " + d.KeyType(),
		d.QuoteIdent("last_name") + " " + d.KeyType(),
		d.QuoteIdent("email") + " " + d.KeyType(),
		d.QuoteIdent("signup_date") + " DATE",
	}, ", ")
	stmts := append(d.EnsureSchema(schema), d.CreateTableIfNotExists(d.TableName(schema, models.CustomerTable), defs))
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "ensure customer table", err)
		}
	}
	return nil
}

// SeedCustomers inserts customers in one transaction, leaving rows whose id
// already exists untouched, and returns how many rows were new. Seeding the
// same ids again is a no-op.
func SeedCustomers(ctx context.Context, db *sql.DB, d database.Dialect, schema string, customers []models.Customer) (int64, error) {
	if err := EnsureCustomerTable(ctx, db, d, schema); err != nil {
		return 0, err
	}
	query := d.InsertIgnore(d.TableName(schema, models.CustomerTable), models.CustomerColumns)

	var inserted int64
	err := database.InTx(ctx, db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "prepare customer insert", err)
		}
		defer stmt.Close()

		for _, c := range customers {
			res, err := stmt.ExecContext(ctx, c.Args()...)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrSinkWriteFailure, fmt.Sprintf("insert customer %d", c.CustomerID), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("seeded customers", "table", models.CustomerTable, "requested", len(customers), "inserted", inserted)
	return inserted, nil
}

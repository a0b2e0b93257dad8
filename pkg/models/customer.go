package models

import "time"

// CustomerTable is the dimension table the order loads join against.
const CustomerTable = "customer_dim"

// DateLayout is how customer signup dates are written.
const DateLayout = "2006-01-02"

type Customer struct {
	CustomerID int       `json:"customer_id" bson:"customer_id"`
	FirstName  string    `json:"first_name" bson:"first_name"`
	LastName   string    `json:"last_name" bson:"last_name"`
	Email      string    `json:"email" bson:"email"`
	SignupDate time.Time `json:"signup_date" bson:"signup_date"`
}

// CustomerColumns lists the customer_dim columns, key first.
var CustomerColumns = []string{"customer_id", "first_name", "last_name", "email", "signup_date"}

// Args returns the bind values in CustomerColumns order.
func (c Customer) Args() []any {
	return []any{c.CustomerID, c.FirstName, c.LastName, c.Email, c.SignupDate.UTC().Format(DateLayout)}
}

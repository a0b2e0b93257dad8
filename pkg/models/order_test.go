package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderRecordMatchesHeader(t *testing.T) {
	o := Order{
		OrderID:            42,
		OrderTimestamp:     time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC),
		CustomerID:         7,
		ProductID:          19,
		Quantity:           3,
		UnitPrice:          12.5,
		Location:           "Gdansk",
		ProductDescription: "Blue ceramic mug set",
	}

	rec := o.Record()
	assert.Len(t, rec, len(OrderHeader()))
	assert.Equal(t, []string{"42", "2026-10-17 08:30:00", "7", "19", "3", "12.50", "Gdansk", "Blue ceramic mug set"}, rec)
	assert.Equal(t, "order_id", OrderHeader()[0])
	assert.Equal(t, "product_description", OrderHeader()[7])
}

package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)
	in := time.Date(2024, 3, 5, 22, 15, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestTransactionIsOutflow(t *testing.T) {
	tests := []struct {
		amount string
		want   bool
	}{
		{"-1234.56", true},
		{"500", false},
		{"0", false},
	}
	for _, tt := range tests {
		txn := Transaction{Amount: decimal.RequireFromString(tt.amount)}
		assert.Equal(t, tt.want, txn.IsOutflow(), "IsOutflow(%s)", tt.amount)
	}
}

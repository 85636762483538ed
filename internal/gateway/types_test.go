package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gallerix/payment-service/internal/gateway"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"whole", 200, 20000},
		{"cents", 199.90, 19990},
		{"single_cent", 0.01, 1},
		{"zero", 0, 0},
		{"rounds_binary_representation", 19.99, 1999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gateway.MinorUnits(tt.amount))
		})
	}
}

package payment_test

import (
	"math"
	"testing"

	"github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	p, err := payment.ParseProvider("stripe")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderStripe, p)

	p, err = payment.ParseProvider("PayPal")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderPayPal, p)

	_, err = payment.ParseProvider("wave")
	assert.ErrorIs(t, err, errors.ErrUnknownProvider)
}

func TestPaymentData_Validate(t *testing.T) {
	valid := payment.PaymentData{Amount: 25, Currency: "EUR", CustomerID: "cus_1"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		data  payment.PaymentData
		field string
	}{
		{"zero amount", payment.PaymentData{Amount: 0, Currency: "EUR", CustomerID: "c"}, "amount"},
		{"negative amount", payment.PaymentData{Amount: -3, Currency: "EUR", CustomerID: "c"}, "amount"},
		{"nan amount", payment.PaymentData{Amount: math.NaN(), Currency: "EUR", CustomerID: "c"}, "amount"},
		{"short currency", payment.PaymentData{Amount: 1, Currency: "EU", CustomerID: "c"}, "currency"},
		{"missing customer", payment.PaymentData{Amount: 1, Currency: "EUR"}, "customer_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate()
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	amounts := []float64{0.01, 0.1, 1.005, 10.5, 19.99, 1234.56, 99999.99}
	for _, a := range amounts {
		minor := payment.ToMinorUnits(a)
		assert.Equal(t, int64(math.Round(a*100)), minor)
		assert.InDelta(t, a, payment.FromMinorUnits(minor), 0.005)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.50", payment.FormatAmount(10.5))
	assert.Equal(t, "0.00", payment.FormatAmount(0))
	assert.Equal(t, "19.99", payment.FormatAmount(19.99))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "XOF", payment.NormalizeCurrency(" xof "))
}

package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateStatement(t *testing.T) {
	r, err := New().GenerateStatement(context.Background(), StatementData{
		DeliveryID:     "1",
		ReportID:       "r-1",
		TruckCode:      "tr-1",
		PlayerID:       "p-1",
		PricingVersion: "v1",
		Lines: []StatementLine{
			{Material: "glass", Quantity: 5, UnitPrice: "3.00", Credits: "15.00"},
			{Material: "plastic", Quantity: 10, UnitPrice: "2.00", Credits: "20.00"},
		},
		TotalBottles:  "15",
		CreditsEarned: "35.00",
		RecyclerFull:  true,
	})
	require.NoError(t, err)

	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

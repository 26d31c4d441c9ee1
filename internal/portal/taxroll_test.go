package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanValue(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"$12,345.67", ptr(12345.67)},
		{"-1,200", ptr(-1200)},
		{".5 acres", ptr(0.5)},
		{"Total: 300 (est.)", ptr(300)},
		{"", nil},
		{"N/A", nil},
	}
	for _, tt := range tests {
		got := CleanValue(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.InDelta(t, *tt.want, *got, 0.001, tt.in)
	}
}

func ptr(f float64) *float64 { return &f }

func TestDecodeStatement(t *testing.T) {
	snap := StatementSnapshot{
		Account:    "0660640130020",
		Status:     "Delinquent",
		Date:       "10/01/2024",
		OwnerLines: []string{"DOE JANE", "PO BOX 1", "HOUSTON TX 77001"},
		SiteLines:  []string{"123 MAIN ST", "LT 5 BLK 3", "OAK RIDGE SEC 2"},
		Values:     []string{"$50,000", "$200,000", "$250,000", "$0", "$240,000"},
		Exemption:  "HS",
		Due:        []string{"$4,100.00", "Amount", "$3,900.50", "$1,250.00"},
	}

	st, err := DecodeStatement(snap)
	require.NoError(t, err)
	assert.Equal(t, "0660640130020", st.Account)
	assert.Equal(t, "Delinquent", st.StatusText)
	assert.Equal(t, "DOE JANE", st.Owner)
	assert.Equal(t, "PO BOX 1, HOUSTON TX 77001", st.MailingAddress)
	assert.Equal(t, "123 MAIN ST", st.SiteAddress)
	assert.Equal(t, "LT 5 BLK 3 OAK RIDGE SEC 2", st.LegalDescription)
	assert.Equal(t, "HS", st.ExemptionCode)
	assert.InDelta(t, 50000, *st.LandMarketValue, 0.01)
	assert.InDelta(t, 200000, *st.ImprovementValue, 0.01)
	assert.InDelta(t, 250000, *st.TotalMarketValue, 0.01)
	assert.InDelta(t, 240000, *st.AppraisedValue, 0.01)
	assert.InDelta(t, 4100, *st.TaxesDueByJanuary31, 0.01)
	assert.InDelta(t, 3900.5, *st.CurrentTaxesDue, 0.01)
	assert.InDelta(t, 1250, *st.PriorYearsTaxesDue, 0.01)
}

func TestDecodeStatement_Partial(t *testing.T) {
	st, err := DecodeStatement(StatementSnapshot{Account: "123", Values: []string{"$10"}})
	require.NoError(t, err)
	assert.InDelta(t, 10, *st.LandMarketValue, 0.01)
	assert.Nil(t, st.AppraisedValue)
	assert.Nil(t, st.CurrentTaxesDue)
	assert.Empty(t, st.Owner)
}

func TestDecodeStatement_Empty(t *testing.T) {
	_, err := DecodeStatement(StatementSnapshot{})
	assert.ErrorIs(t, err, ErrNoStatement)
}

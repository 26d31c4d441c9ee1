package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/probate-link/internal/model"
)

func TestExpandLots(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"6-7", []string{"6", "7"}},
		{"10-12", []string{"10", "11", "12"}},
		{"9-3", []string{"9-3"}},
		{"5,6, 7", []string{"5", "6", "7"}},
		{"5 & 6", []string{"5", "6"}},
		{"12A", []string{"12A"}},
		{"", []string{""}},
		{",", []string{""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandLots(tt.in), tt.in)
	}
}

func TestExpandLots_WideRangeKeptAsWritten(t *testing.T) {
	assert.Len(t, ExpandLots("1-500"), MaxLotSpan)
	assert.Equal(t, []string{"1-501"}, ExpandLots("1-501"))
	assert.Equal(t, []string{"1-5000000"}, ExpandLots("1-5000000"))
	assert.Equal(t, []string{"1-99999999999999999999"}, ExpandLots("1-99999999999999999999"))
}

func TestExpand_LotRangeReplicatesParties(t *testing.T) {
	rec := Record{
		FileNumber: "RP-2024-0001",
		Legal:      model.LegalDescription{Lot: "6-7", Block: "3", Subdivision: "OAK RIDGE"},
		Grantors:   []Party{{Last: "DOE", First: "JOHN"}},
		Grantees:   []Party{{Last: "ROE", First: "RICHARD"}},
	}

	rows := Expand([]Record{rec})
	require.Len(t, rows, 4)

	lot6 := []PartyRow{rows[0], rows[1]}
	lot7 := []PartyRow{rows[2], rows[3]}
	for _, r := range lot6 {
		assert.Equal(t, "6", r.Legal.Lot)
	}
	for _, r := range lot7 {
		assert.Equal(t, "7", r.Legal.Lot)
	}
	assert.Equal(t, RoleGrantor, rows[0].Role)
	assert.Equal(t, "DOE", rows[0].Party.Last)
	assert.Equal(t, RoleGrantee, rows[1].Role)
	assert.Equal(t, "ROE", rows[1].Party.Last)
	assert.Equal(t, "3", rows[3].Legal.Block)
	assert.Equal(t, "6-7", rec.Legal.Lot, "source record is not mutated")
}

func TestExpand_NoParties(t *testing.T) {
	rows := Expand([]Record{{FileNumber: "RP-1", Legal: model.LegalDescription{Lot: "1,2"}}})
	require.Len(t, rows, 2)
	assert.Equal(t, RoleNone, rows[0].Role)
	assert.Equal(t, "2", rows[1].Legal.Lot)
}

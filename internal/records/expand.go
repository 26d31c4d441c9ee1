package records

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/model"
)

// Party roles in an expanded row.
const (
	RoleGrantor = "Grantor"
	RoleGrantee = "Grantee"
	RoleTrustee = "Trustee"
	RoleNone    = "N/A"
)

// PartyRow is one (record, lot, party) combination.
type PartyRow struct {
	FileNumber     string                 `json:"file_number"`
	FileDate       string                 `json:"file_date,omitempty"`
	InstrumentType string                 `json:"instrument_type,omitempty"`
	Legal          model.LegalDescription `json:"legal"`
	Role           string                 `json:"role"`
	Party          Party                  `json:"party"`
}

var lotRangeRE = regexp.MustCompile(`^\d+-\d+$`)

// MaxLotSpan is the widest lot range ExpandLots will enumerate. Wider
// ranges are almost always typos in the clerk index.
const MaxLotSpan = 500

// ExpandLots splits a composite lot value into discrete lots. Ranges such as
// "6-7" are inclusive; descending ranges and ranges wider than MaxLotSpan
// are kept as written. Comma and
// ampersand lists are split. An empty value yields one empty lot.
func ExpandLots(lot string) []string {
	lot = strings.TrimSpace(lot)
	var lots []string
	switch {
	case lot == "":
	case lotRangeRE.MatchString(lot):
		lo, hi, _ := strings.Cut(lot, "-")
		start, err1 := strconv.Atoi(lo)
		end, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil || start > end || end-start+1 > MaxLotSpan {
			zap.L().Debug("records: lot range kept as written", zap.String("lot", lot))
			lots = append(lots, lot)
			break
		}
		for n := start; n <= end; n++ {
			lots = append(lots, strconv.Itoa(n))
		}
	case strings.Contains(lot, ","):
		lots = splitTrim(lot, ",")
	case strings.Contains(lot, "&"):
		lots = splitTrim(lot, "&")
	default:
		lots = append(lots, lot)
	}
	if len(lots) == 0 {
		lots = []string{""}
	}
	return lots
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Expand flattens records into one row per lot per party, in grantor,
// grantee, trustee order. A record with no parties yields one N/A row per lot.
func Expand(recs []Record) []PartyRow {
	var out []PartyRow
	for _, rec := range recs {
		for _, lot := range ExpandLots(rec.Legal.Lot) {
			base := PartyRow{
				FileNumber:     rec.FileNumber,
				FileDate:       rec.FileDate,
				InstrumentType: rec.InstrumentType,
				Legal:          rec.Legal,
			}
			base.Legal.Lot = lot

			if !rec.HasParties() {
				base.Role = RoleNone
				out = append(out, base)
				continue
			}
			for _, group := range []struct {
				role    string
				parties []Party
			}{
				{RoleGrantor, rec.Grantors},
				{RoleGrantee, rec.Grantees},
				{RoleTrustee, rec.Trustees},
			} {
				for _, p := range group.parties {
					row := base
					row.Role = group.role
					row.Party = p
					out = append(out, row)
				}
			}
		}
	}
	return out
}

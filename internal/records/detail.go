package records

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/probate-link/internal/model"
)

// ErrEmptyDetail is returned when a detail page carries no identifying fields.
var ErrEmptyDetail = eris.New("records: detail page has no account, owner, or legal description")

// Section headings emitted by the detail extractor as single-cell rows.
const (
	SectionLand            = "LAND"
	SectionBuildingAreas   = "BUILDING AREAS"
	SectionCharacteristics = "BUILDING CHARACTERISTICS"
	SectionHistory         = "APPRAISAL HISTORY"
)

const (
	minSummaryCells = 7
	minLandCells    = 12
)

var sections = map[string]bool{
	SectionLand:            true,
	SectionBuildingAreas:   true,
	SectionCharacteristics: true,
	SectionHistory:         true,
}

// DecodeSummary reads one search-result listing row. The first cell must
// link to the detail page. Columns: account, owner, address, zip, square
// feet, market value, appraised value.
func DecodeSummary(row Row) (model.CandidateSummary, bool) {
	if len(row) < minSummaryCells || row[0].Href == "" {
		return model.CandidateSummary{}, false
	}
	account := row.Text(0)
	if account == "" {
		return model.CandidateSummary{}, false
	}
	return model.CandidateSummary{
		Account:        account,
		Owner:          row.Text(1),
		Address:        row.Text(2),
		Zip:            row.Text(3),
		SquareFeet:     ParseNumber(row.Text(4)),
		MarketValue:    ParseNumber(row.Text(5)),
		AppraisedValue: ParseNumber(row.Text(6)),
		Ref:            model.DetailRef{URL: row[0].Href, Account: account},
	}, true
}

// DecodeDetail reads an assessor detail page flattened into rows: two-cell
// label/value rows for the header fields, then titled sections introduced
// by single-cell heading rows.
func DecodeDetail(rows []Row) (*model.CandidateDetail, error) {
	d := &model.CandidateDetail{}
	section := ""

	for _, row := range rows {
		if len(row) == 1 {
			if h := strings.ToUpper(row.Text(0)); sections[h] {
				section = h
				continue
			}
		}
		if len(row) == 2 && applyHeaderField(d, row) {
			continue
		}

		switch section {
		case SectionLand:
			if line, ok := decodeLandLine(row); ok {
				d.LandLines = append(d.LandLines, line)
			}
		case SectionBuildingAreas:
			if len(row) >= 2 && row.Text(0) != "" {
				if area := ParseNumber(row.Text(1)); area != nil {
					d.BuildingAreas = append(d.BuildingAreas, model.BuildingArea{Type: row.Text(0), SquareFeet: area})
				}
			}
		case SectionCharacteristics:
			if len(row) == 2 && row.Text(0) != "" {
				setCharacteristic(&d.Building, row.Text(0), row.Text(1))
			}
		case SectionHistory:
			if y, ok := decodeHistory(row); ok {
				d.History = append(d.History, y)
			}
		}
	}

	if d.Account == "" && d.Owner == "" && d.LegalDescription == "" {
		return nil, ErrEmptyDetail
	}
	return d, nil
}

// applyHeaderField sets a top-level detail field from a label/value row.
func applyHeaderField(d *model.CandidateDetail, row Row) bool {
	label := strings.ToUpper(strings.TrimSuffix(row.Text(0), ":"))
	value := row.Text(1)

	switch {
	case strings.HasPrefix(label, "ACCOUNT"):
		d.Account = value
	case strings.HasPrefix(label, "OWNER NAME"):
		lines := splitLines(row[1].Text)
		if len(lines) > 0 {
			d.Owner = lines[0]
			d.MailingAddress = strings.Join(lines[1:], " ")
		}
	case label == "LEGAL DESCRIPTION":
		d.LegalDescription = value
	case label == "PROPERTY ADDRESS":
		d.SiteAddress = value
	case label == "LAND MARKET VALUE":
		d.LandValue = ParseNumber(value)
	case label == "IMPROVEMENT MARKET VALUE":
		d.ImprovementValue = ParseNumber(value)
	case label == "TOTAL MARKET VALUE":
		d.MarketValue = ParseNumber(value)
	case label == "APPRAISED VALUE":
		d.AppraisedValue = ParseNumber(value)
	case label == "DETAIL URL":
		d.URL = value
	default:
		return false
	}
	return true
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if l := CleanText(line); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func decodeLandLine(row Row) (model.LandLine, bool) {
	if len(row) < minLandCells {
		return model.LandLine{}, false
	}
	units := ParseNumber(row.Text(3))
	value := ParseNumber(row.Text(11))
	if units == nil && value == nil {
		return model.LandLine{}, false
	}
	return model.LandLine{
		Use:         row.Text(0),
		Description: row.Text(1),
		UnitType:    row.Text(2),
		Units:       units,
		Value:       value,
	}, true
}

func decodeHistory(row Row) (model.AppraisalYear, bool) {
	if len(row) < 2 {
		return model.AppraisalYear{}, false
	}
	year, err := strconv.Atoi(row.Text(0))
	if err != nil {
		return model.AppraisalYear{}, false
	}
	y := model.AppraisalYear{Year: year, Appraised: ParseNumber(row.Text(1))}
	if len(row) > 2 {
		y.Market = ParseNumber(row.Text(2))
	}
	return y, true
}

var labelSepRE = regexp.MustCompile(`[\s/-]+`)

// characteristicKey normalizes a building characteristic label, e.g.
// "Room: Bedroom" becomes "room_bedroom".
func characteristicKey(label string) string {
	l := strings.ToLower(label)
	l = strings.NewReplacer(":", "", "(", "", ")", "").Replace(l)
	return strings.Trim(labelSepRE.ReplaceAllString(l, "_"), "_")
}

func setCharacteristic(b *model.BuildingCharacteristics, label, value string) {
	key := characteristicKey(label)
	switch {
	case strings.Contains(key, "room_bedroom") || key == "bedrooms":
		b.Bedrooms = value
	case strings.Contains(key, "room_full_bath") || key == "full_bathrooms":
		b.FullBaths = value
	case strings.Contains(key, "room_half_bath") || key == "half_bathrooms":
		b.HalfBaths = value
	case strings.Contains(key, "heating_ac"):
		b.HeatingAC = value
	case strings.Contains(key, "stories_story_height") || key == "stories":
		b.Stories = value
	case key == "foundation_type":
		b.Foundation = value
	case key == "exterior_wall":
		b.ExteriorWall = value
	case key == "roof_type":
		b.Roof = value
	case key == "grade_adjustment":
		b.Grade = value
	case key == "physical_condition":
		b.Condition = value
	case key == "carport":
		b.Carport = value
	default:
		if b.Other == nil {
			b.Other = make(map[string]string)
		}
		b.Other[key] = value
	}
}

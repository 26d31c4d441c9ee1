package model

import "strings"

// DetailRef locates the detail page of a candidate.
type DetailRef struct {
	URL     string `json:"url"`
	Account string `json:"account,omitempty"`
}

// CandidateSummary holds the fields shown in a search result listing.
type CandidateSummary struct {
	Account        string    `json:"account"`
	Owner          string    `json:"owner"`
	Address        string    `json:"address"`
	Zip            string    `json:"zip,omitempty"`
	SquareFeet     *float64  `json:"square_feet,omitempty"`
	MarketValue    *float64  `json:"market_value,omitempty"`
	AppraisedValue *float64  `json:"appraised_value,omitempty"`
	Ref            DetailRef `json:"ref"`
}

// LandLine is one row of the land valuation table.
type LandLine struct {
	Use         string   `json:"use,omitempty"`
	Description string   `json:"description,omitempty"`
	Units       *float64 `json:"units,omitempty"`
	UnitType    string   `json:"unit_type,omitempty"`
	Value       *float64 `json:"value,omitempty"`
}

// BuildingArea is one row of the building area table.
type BuildingArea struct {
	Type       string   `json:"type"`
	SquareFeet *float64 `json:"square_feet,omitempty"`
}

// BuildingCharacteristics describes the main improvement.
type BuildingCharacteristics struct {
	Bedrooms     string            `json:"bedrooms,omitempty"`
	FullBaths    string            `json:"full_baths,omitempty"`
	HalfBaths    string            `json:"half_baths,omitempty"`
	Foundation   string            `json:"foundation,omitempty"`
	ExteriorWall string            `json:"exterior_wall,omitempty"`
	Roof         string            `json:"roof,omitempty"`
	HeatingAC    string            `json:"heating_ac,omitempty"`
	Grade        string            `json:"grade,omitempty"`
	Condition    string            `json:"condition,omitempty"`
	Stories      string            `json:"stories,omitempty"`
	Carport      string            `json:"carport,omitempty"`
	Other        map[string]string `json:"other,omitempty"`
}

// AppraisalYear is one year of appraisal history.
type AppraisalYear struct {
	Year      int      `json:"year"`
	Appraised *float64 `json:"appraised,omitempty"`
	Market    *float64 `json:"market,omitempty"`
}

// CandidateDetail holds the fields of a fully fetched assessor record.
type CandidateDetail struct {
	Account          string                  `json:"account"`
	URL              string                  `json:"url,omitempty"`
	Owner            string                  `json:"owner"`
	MailingAddress   string                  `json:"mailing_address,omitempty"`
	LegalDescription string                  `json:"legal_description"`
	SiteAddress      string                  `json:"site_address,omitempty"`
	LandValue        *float64                `json:"land_value,omitempty"`
	ImprovementValue *float64                `json:"improvement_value,omitempty"`
	MarketValue      *float64                `json:"market_value,omitempty"`
	AppraisedValue   *float64                `json:"appraised_value,omitempty"`
	LandLines        []LandLine              `json:"land_lines,omitempty"`
	BuildingAreas    []BuildingArea          `json:"building_areas,omitempty"`
	Building         BuildingCharacteristics `json:"building"`
	History          []AppraisalYear         `json:"history,omitempty"`
}

// LotSquareFeet sums the square-foot land lines.
func (d *CandidateDetail) LotSquareFeet() float64 {
	var total float64
	for _, l := range d.LandLines {
		if l.Units != nil && (l.UnitType == "SF" || l.UnitType == "") {
			total += *l.Units
		}
	}
	return total
}

// LandValueTotal sums the land line values.
func (d *CandidateDetail) LandValueTotal() float64 {
	var total float64
	for _, l := range d.LandLines {
		if l.Value != nil {
			total += *l.Value
		}
	}
	return total
}

// AreaByType sums building area square footage whose type contains any of
// the given markers (e.g. "BASE", "GARAGE").
func (d *CandidateDetail) AreaByType(markers ...string) float64 {
	var total float64
	for _, a := range d.BuildingAreas {
		if a.SquareFeet == nil {
			continue
		}
		for _, m := range markers {
			if strings.Contains(strings.ToUpper(a.Type), strings.ToUpper(m)) {
				total += *a.SquareFeet
				break
			}
		}
	}
	return total
}

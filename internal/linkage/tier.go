package linkage

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Field names a lead value a tier can consume.
type Field string

const (
	FieldLot          Field = "lot"
	FieldBlock        Field = "block"
	FieldSection      Field = "section"
	FieldTract        Field = "tract"
	FieldSubdivision  Field = "subdivision"
	FieldGranteeLast  Field = "grantee_last"
	FieldDecedentLast Field = "decedent_last"
)

var knownFields = map[Field]bool{
	FieldLot: true, FieldBlock: true, FieldSection: true, FieldTract: true,
	FieldSubdivision: true, FieldGranteeLast: true, FieldDecedentLast: true,
}

// OwnerSource selects the name a tier searches and scores the owner against.
type OwnerSource string

const (
	// OwnerNone tiers search on legal text only.
	OwnerNone OwnerSource = ""
	// OwnerGranteeLast searches the first grantee's last name.
	OwnerGranteeLast OwnerSource = "grantee_last"
	// OwnerDecedentLast searches the decedent's last name.
	OwnerDecedentLast OwnerSource = "decedent_last"
)

// LegalScoring selects how a fetched legal description is scored.
type LegalScoring string

const (
	// LegalByField awards points per matching lot, block, section, and tract.
	LegalByField LegalScoring = "fields"
	// LegalDirect compares the reconstructed legal string as a whole.
	LegalDirect LegalScoring = "direct"
)

// Term is one labeled value in a legal query, such as "BLK 3".
type Term struct {
	Label string `yaml:"label,omitempty"`
	Field Field  `yaml:"field"`
}

// QueryPart is a list of alternative terms; the first with a value is used.
type QueryPart []Term

// TierSpec declares how one tier builds its query and scores its results.
type TierSpec struct {
	Name string `yaml:"name"`
	// Requires lists fields that must all be present.
	Requires []Field `yaml:"requires,omitempty"`
	// RequiresAny lists fields of which at least one must be present.
	RequiresAny []Field `yaml:"requires_any,omitempty"`
	// SingleLot rejects lot values that are ranges or lists.
	SingleLot bool        `yaml:"single_lot,omitempty"`
	Legal     []QueryPart `yaml:"legal,omitempty"`
	Owner     OwnerSource `yaml:"owner,omitempty"`
	// SurnameGuard refuses common surnames unless a block or tract narrows
	// the search.
	SurnameGuard bool `yaml:"surname_guard,omitempty"`
	// SkipWhenBroad skips the tier once the lead's subdivision overflowed a
	// result page.
	SkipWhenBroad bool `yaml:"skip_when_broad,omitempty"`
	// ConfirmName requires a name signal on a single hit before the cascade
	// stops.
	ConfirmName  bool         `yaml:"confirm_name,omitempty"`
	LegalScoring LegalScoring `yaml:"legal_scoring,omitempty"`
	// SummaryBonus enables the partial full-legal bonus in summary scoring.
	SummaryBonus bool `yaml:"summary_bonus,omitempty"`
	// OwnerPenalty penalizes weak owner matches in detail scoring.
	OwnerPenalty bool `yaml:"owner_penalty,omitempty"`
}

// Tier names of the default cascade.
const (
	TierExactLot        = "T0_ExactLotBlockSubdivision"
	TierGranteeLast     = "T1_GranteeLastName_Subdivision"
	TierGrantorLast     = "T1_GrantorLastName_Subdivision"
	TierExactLegal      = "T2_ExactLegal"
	TierDropSection     = "T3_DropSec"
	TierFallbackOwner   = "Fallback_Owner_SubdivisionContains"
	TierSubdivisionOnly = "T4_Subdivision_Block"
)

func term(label string, f Field) QueryPart { return QueryPart{{Label: label, Field: f}} }

// DefaultTiers returns the cascade in priority order, most specific first.
func DefaultTiers() []TierSpec {
	ownerLegal := []QueryPart{
		term("BLK", FieldBlock), term("", FieldSubdivision), term("TR", FieldTract),
	}
	return []TierSpec{
		{
			Name:      TierExactLot,
			Requires:  []Field{FieldLot, FieldBlock, FieldSubdivision},
			SingleLot: true,
			Legal: []QueryPart{
				term("LT", FieldLot), term("BLK", FieldBlock), term("", FieldSubdivision),
			},
			ConfirmName: true,
		},
		{
			Name:         TierGranteeLast,
			Requires:     []Field{FieldGranteeLast, FieldSubdivision},
			Legal:        ownerLegal,
			Owner:        OwnerGranteeLast,
			SurnameGuard: true,
			OwnerPenalty: true,
		},
		{
			Name:         TierGrantorLast,
			Requires:     []Field{FieldDecedentLast, FieldSubdivision},
			Legal:        ownerLegal,
			Owner:        OwnerDecedentLast,
			SurnameGuard: true,
			OwnerPenalty: true,
		},
		{
			Name:        TierExactLegal,
			RequiresAny: []Field{FieldTract, FieldBlock, FieldSubdivision, FieldSection},
			Legal: []QueryPart{
				term("TR", FieldTract), term("BLK", FieldBlock), term("", FieldSubdivision), term("SEC", FieldSection),
			},
			SkipWhenBroad: true,
			SummaryBonus:  true,
		},
		{
			Name:        TierDropSection,
			RequiresAny: []Field{FieldTract, FieldBlock, FieldSubdivision},
			Legal: []QueryPart{
				term("TR", FieldTract), term("BLK", FieldBlock), term("", FieldSubdivision),
			},
			SkipWhenBroad: true,
			SummaryBonus:  true,
		},
		{
			Name:     TierFallbackOwner,
			Requires: []Field{FieldDecedentLast, FieldSubdivision},
			Legal: []QueryPart{
				term("", FieldSubdivision),
				{{Label: "BLK", Field: FieldBlock}, {Label: "TR", Field: FieldTract}},
			},
			Owner:        OwnerDecedentLast,
			SurnameGuard: true,
			OwnerPenalty: true,
		},
		{
			Name:        TierSubdivisionOnly,
			RequiresAny: []Field{FieldBlock, FieldSubdivision},
			Legal: []QueryPart{
				term("BLK", FieldBlock), term("", FieldSubdivision),
			},
			SkipWhenBroad: true,
			LegalScoring:  LegalDirect,
		},
	}
}

// LoadTiers reads an ordered tier list from a YAML file.
func LoadTiers(path string) ([]TierSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "linkage: read tiers %s", path)
	}
	var doc struct {
		Tiers []TierSpec `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "linkage: parse tiers %s", path)
	}
	if err := ValidateTiers(doc.Tiers); err != nil {
		return nil, err
	}
	return doc.Tiers, nil
}

// MarshalTiers renders tiers in the format LoadTiers reads.
func MarshalTiers(tiers []TierSpec) ([]byte, error) {
	out, err := yaml.Marshal(struct {
		Tiers []TierSpec `yaml:"tiers"`
	}{tiers})
	if err != nil {
		return nil, eris.Wrap(err, "linkage: marshal tiers")
	}
	return out, nil
}

// ValidateTiers checks that tier names are unique and every tier can form
// a query from the fields it references.
func ValidateTiers(tiers []TierSpec) error {
	if len(tiers) == 0 {
		return eris.New("linkage: tier list is empty")
	}
	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.Name == "" {
			return eris.Errorf("linkage: tier %d has no name", i)
		}
		if seen[t.Name] {
			return eris.Errorf("linkage: duplicate tier %q", t.Name)
		}
		seen[t.Name] = true

		if len(t.Legal) == 0 && t.Owner == OwnerNone {
			return eris.Errorf("linkage: tier %q has neither legal terms nor an owner source", t.Name)
		}
		fields := append(append([]Field{}, t.Requires...), t.RequiresAny...)
		for _, part := range t.Legal {
			if len(part) == 0 {
				return eris.Errorf("linkage: tier %q has an empty legal part", t.Name)
			}
			for _, tm := range part {
				fields = append(fields, tm.Field)
			}
		}
		for _, f := range fields {
			if !knownFields[f] {
				return eris.Errorf("linkage: tier %q references unknown field %q", t.Name, f)
			}
		}
		switch t.Owner {
		case OwnerNone, OwnerGranteeLast, OwnerDecedentLast:
		default:
			return eris.Errorf("linkage: tier %q has unknown owner source %q", t.Name, t.Owner)
		}
		switch t.LegalScoring {
		case "", LegalByField, LegalDirect:
		default:
			return eris.Errorf("linkage: tier %q has unknown legal scoring %q", t.Name, t.LegalScoring)
		}
	}
	return nil
}

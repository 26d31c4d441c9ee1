package linkage

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/fuzzy"
	"github.com/sells-group/probate-link/internal/model"
)

// PlanKind says whether a tier produced a query.
type PlanKind int

const (
	// PlanQuery carries a query to execute.
	PlanQuery PlanKind = iota
	// PlanInsufficient means the lead lacks a field the tier requires.
	PlanInsufficient
	// PlanTooBroad means the common-surname guard refused the query.
	PlanTooBroad
)

// Plan is the planner's answer for one tier.
type Plan struct {
	Kind   PlanKind
	Query  Query
	Reason string
}

// Planner builds tier queries from leads. It is stateless and safe for
// concurrent use.
type Planner struct {
	surnames map[string]bool
	legalMax int
	ownerMax int
}

// NewPlanner creates a planner guarding the given common surnames and
// truncating queries to the thresholds' field limits.
func NewPlanner(commonSurnames []string, th config.ThresholdsConfig) *Planner {
	set := make(map[string]bool, len(commonSurnames))
	for _, s := range commonSurnames {
		if s = fuzzy.Normalize(s); s != "" {
			set[s] = true
		}
	}
	return &Planner{surnames: set, legalMax: th.LegalQueryMax, ownerMax: th.OwnerQueryMax}
}

// Plan builds the query for tier from lead, or explains why it cannot.
func (p *Planner) Plan(lead model.Lead, tier TierSpec) Plan {
	vals := leadValues(lead)

	for _, f := range tier.Requires {
		if vals[f] == "" {
			return Plan{Kind: PlanInsufficient, Reason: fmt.Sprintf("missing %s", f)}
		}
	}
	if len(tier.RequiresAny) > 0 && !anyPresent(vals, tier.RequiresAny) {
		return Plan{Kind: PlanInsufficient, Reason: fmt.Sprintf("needs one of %s", joinFields(tier.RequiresAny))}
	}
	if tier.SingleLot && strings.ContainsAny(vals[FieldLot], "-/,&") {
		return Plan{Kind: PlanInsufficient, Reason: fmt.Sprintf("lot %q is not a single value", vals[FieldLot])}
	}

	var owner string
	switch tier.Owner {
	case OwnerGranteeLast:
		owner = vals[FieldGranteeLast]
	case OwnerDecedentLast:
		owner = vals[FieldDecedentLast]
	}
	if tier.SurnameGuard && p.surnames[owner] && vals[FieldBlock] == "" && vals[FieldTract] == "" {
		return Plan{Kind: PlanTooBroad, Reason: fmt.Sprintf("common surname %s without block or tract", owner)}
	}

	q := Query{
		Legal: p.truncate(tier.Name, "legal", buildLegal(tier.Legal, vals), p.legalMax),
		Owner: p.truncate(tier.Name, "owner", owner, p.ownerMax),
	}
	if q.IsEmpty() {
		return Plan{Kind: PlanInsufficient, Reason: "no query terms"}
	}
	return Plan{Kind: PlanQuery, Query: q}
}

func (p *Planner) truncate(tier, field, s string, max int) string {
	if max <= 0 || len([]rune(s)) <= max {
		return s
	}
	out := strings.TrimSpace(string([]rune(s)[:max]))
	zap.L().Warn("linkage: query truncated",
		zap.String("tier", tier),
		zap.String("field", field),
		zap.String("original", s),
		zap.String("truncated", out),
	)
	return out
}

func buildLegal(parts []QueryPart, vals map[Field]string) string {
	var out []string
	for _, part := range parts {
		for _, t := range part {
			v := vals[t.Field]
			if v == "" {
				continue
			}
			if t.Label != "" {
				v = t.Label + " " + v
			}
			out = append(out, v)
			break
		}
	}
	return strings.Join(out, " ")
}

// leadValues extracts the normalized field values a tier can reference.
func leadValues(lead model.Lead) map[Field]string {
	vals := map[Field]string{
		FieldLot:          normalizeLot(lead.Legal.Lot),
		FieldBlock:        cleanValue(lead.Legal.Block),
		FieldSection:      cleanValue(lead.Legal.Section),
		FieldTract:        cleanValue(lead.Legal.Tract),
		FieldSubdivision:  cleanValue(lead.Legal.Subdivision),
		FieldDecedentLast: cleanValue(lead.DecedentLast),
	}
	if len(lead.Grantees) > 0 {
		vals[FieldGranteeLast] = cleanValue(fuzzy.LastToken(lead.Grantees[0]))
	}
	return vals
}

// cleanValue uppercases and trims s, mapping the "NAN" placeholder to "".
func cleanValue(s string) string {
	s = fuzzy.Normalize(s)
	if s == "NAN" {
		return ""
	}
	return s
}

// normalizeLot renders a whole-number decimal lot such as "5.0" as "5".
func normalizeLot(s string) string {
	s = cleanValue(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) && !strings.ContainsAny(s, "eE") {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func anyPresent(vals map[Field]string, fields []Field) bool {
	for _, f := range fields {
		if vals[f] != "" {
			return true
		}
	}
	return false
}

func joinFields(fields []Field) string {
	s := make([]string, len(fields))
	for i, f := range fields {
		s[i] = string(f)
	}
	return strings.Join(s, ", ")
}

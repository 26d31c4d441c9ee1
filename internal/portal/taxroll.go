package portal

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/probate-link/internal/model"
)

// Tax collector search selectors.
const (
	taxSearchField   = `#txtSearchValue`
	taxSearchButton  = `#btnSubmitTaxSearch`
	taxStatementRoot = `#CurrentStatement`
)

// ErrNoStatement is returned when the tax collector shows no statement for
// an account.
var ErrNoStatement = eris.New("portal: no current tax statement")

var valueRE = regexp.MustCompile(`(-?[\d,]*\.?\d+)`)

// CleanValue extracts the first number from a display value such as
// "$12,345.67 (est.)". It returns nil when there is none.
func CleanValue(s string) *float64 {
	m := valueRE.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

// StatementSnapshot is the raw text of the current statement, cell by cell.
type StatementSnapshot struct {
	Account    string   `json:"account"`
	Status     string   `json:"status"`
	Date       string   `json:"date"`
	OwnerLines []string `json:"owner_lines"`
	SiteLines  []string `json:"site_lines"`
	Values     []string `json:"values"`
	Exemption  string   `json:"exemption"`
	Due        []string `json:"due"`
}

// statementJS reads the statement tables: table 1 holds account, date and
// owner block, table 2 the site and legal block, the valuation sub-table
// and the exemption code, table 4 the amounts due.
const statementJS = `(() => {
  const root = document.querySelector('#CurrentStatement');
  if (!root) return {};
  const tables = root.querySelectorAll(':scope > table');
  const cell = (t, r, c) => {
    if (!t || !t.rows[r] || !t.rows[r].cells[c]) return null;
    return t.rows[r].cells[c];
  };
  const text = (el) => el ? el.innerText.trim() : '';
  const lines = (el) => el ? Array.from(el.childNodes)
    .filter((n) => n.nodeType === Node.TEXT_NODE)
    .map((n) => n.textContent.trim())
    .filter((s) => s.length > 0) : [];
  const t1 = tables[0], t2 = tables[1], t4 = tables[3];
  const valTable = cell(t2, 1, 1) ? cell(t2, 1, 1).querySelector('table') : null;
  const values = [];
  if (valTable) for (const r of valTable.rows) values.push(r.cells[1] ? r.cells[1].innerText.trim() : '');
  const due = [];
  if (t4) for (const r of t4.rows) due.push(r.cells[1] ? r.cells[1].innerText.trim() : '');
  const status = root.querySelector(':scope > span strong');
  const acct = cell(t1, 1, 0);
  return {
    account: acct && acct.querySelector('b') ? text(acct.querySelector('b')) : text(acct),
    status: text(status),
    date: text(cell(t1, 1, 1)),
    owner_lines: lines(cell(t1, 1, 2)),
    site_lines: lines(cell(t2, 1, 0)),
    values: values,
    exemption: text(cell(t2, 1, 2)),
    due: due,
  };
})()`

// DecodeStatement maps a snapshot onto a TaxStatement. The first owner line
// is the owner; the rest is the mailing address. The first site line is the
// site address; the rest is the legal description.
func DecodeStatement(snap StatementSnapshot) (*model.TaxStatement, error) {
	if snap.Account == "" && len(snap.OwnerLines) == 0 {
		return nil, ErrNoStatement
	}
	st := &model.TaxStatement{
		Account:       strings.TrimSpace(snap.Account),
		StatusText:    strings.TrimSpace(snap.Status),
		StatementDate: strings.TrimSpace(snap.Date),
		ExemptionCode: strings.TrimSpace(snap.Exemption),
	}
	if len(snap.OwnerLines) > 0 {
		st.Owner = snap.OwnerLines[0]
		st.MailingAddress = strings.Join(snap.OwnerLines[1:], ", ")
	}
	if len(snap.SiteLines) > 0 {
		st.SiteAddress = snap.SiteLines[0]
		st.LegalDescription = strings.Join(snap.SiteLines[1:], " ")
	}

	// Valuation rows: land, improvements, total market, (capped), appraised.
	st.LandMarketValue = valueAt(snap.Values, 0)
	st.ImprovementValue = valueAt(snap.Values, 1)
	st.TotalMarketValue = valueAt(snap.Values, 2)
	st.AppraisedValue = valueAt(snap.Values, 4)

	// Amounts due rows: by January 31, (label), current, prior years.
	st.TaxesDueByJanuary31 = valueAt(snap.Due, 0)
	st.CurrentTaxesDue = valueAt(snap.Due, 2)
	st.PriorYearsTaxesDue = valueAt(snap.Due, 3)
	return st, nil
}

func valueAt(vals []string, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return CleanValue(vals[i])
}

// TaxRoll looks up current statements in the tax collector's index.
type TaxRoll struct {
	session *Session
	url     string
	now     func() time.Time
}

// NewTaxRoll creates a tax collector lookup bound to session.
func NewTaxRoll(session *Session, url string) *TaxRoll {
	return &TaxRoll{session: session, url: url, now: time.Now}
}

// Lookup searches for account and decodes its current statement.
func (t *TaxRoll) Lookup(ctx context.Context, account string) (*model.TaxStatement, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, eris.New("portal: empty account")
	}

	resultLink := `//a[contains(text(), "` + strings.ReplaceAll(account, `"`, "") + `")]`
	err := t.session.Run(ctx, "taxroll search",
		chromedp.Navigate(t.url),
		chromedp.WaitVisible(taxSearchField, chromedp.ByQuery),
		chromedp.SetValue(taxSearchField, account, chromedp.ByQuery),
		chromedp.Click(taxSearchButton, chromedp.ByQuery),
		chromedp.WaitVisible(resultLink, chromedp.BySearch),
		chromedp.Click(resultLink, chromedp.BySearch),
		chromedp.WaitVisible(taxStatementRoot, chromedp.ByQuery),
	)
	if err != nil {
		t.session.Screenshot(ctx, "taxroll_"+account)
		return nil, eris.Wrapf(err, "portal: tax statement for %s", account)
	}

	var snap StatementSnapshot
	if err := t.session.Run(ctx, "taxroll statement", chromedp.Evaluate(statementJS, &snap)); err != nil {
		return nil, err
	}
	st, err := DecodeStatement(snap)
	if err != nil {
		return nil, err
	}
	if st.Account == "" {
		st.Account = account
	}
	st.FetchedAt = t.now().UTC()
	return st, nil
}

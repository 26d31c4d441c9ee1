package portal

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/linkage"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
)

// Appraisal district search form and result page selectors.
const (
	assessorLegalInput   = `input[name="desc"]`
	assessorOwnerInput   = `input[name="name"]`
	assessorSearchButton = `input#Search`
	assessorCountBanner  = `p.justcenter`
	assessorResultRows   = `table.bgcolor_1 > tbody > tr[bgcolor="ffffff"]`
	assessorChangeButton = `input[type="submit"][value="Change Criteria or Sorted Order"]`
	assessorNoRecords    = "No records match your search criteria"
	assessorDetailPath   = "details.asp"

	resultWait = 25 * time.Second
)

// searchSnapshot is what the result page looks like right after a search.
type searchSnapshot struct {
	URL       string       `json:"url"`
	NoRecords bool         `json:"no_records"`
	CountText string       `json:"count_text"`
	Rows      [][]cellJSON `json:"rows"`
}

func searchSnapshotJS() string {
	return `(() => {
  const banner = document.querySelector(` + jsString(assessorCountBanner) + `);
  return {
    url: location.href,
    no_records: ` + textContainsJS(assessorNoRecords) + `,
    count_text: banner ? banner.innerText : '',
    rows: ` + tableRowsJS(assessorResultRows) + `,
  };
})()`
}

// detailRowsJS flattens a detail page into label/value rows. Single-cell
// rows carry section headings.
const detailRowsJS = `(() => {
  const rows = [[{text: 'Detail URL'}, {text: location.href}]];
  document.querySelectorAll('tr').forEach((tr) => {
    const cells = Array.from(tr.children)
      .filter((c) => c.tagName === 'TD' || c.tagName === 'TH')
      .map((c) => ({text: c.innerText || ''}));
    if (cells.length > 0) rows.push(cells);
  });
  return rows;
})()`

// Assessor is a linkage.SearchProvider backed by the appraisal district's
// advanced real-property search.
type Assessor struct {
	session   *Session
	searchURL string
	ready     bool
}

// NewAssessor creates a provider that searches from searchURL.
func NewAssessor(session *Session, searchURL string) *Assessor {
	return &Assessor{session: session, searchURL: searchURL}
}

// Execute submits q and snapshots the first result page.
func (a *Assessor) Execute(ctx context.Context, q linkage.Query) (*linkage.RawResponse, error) {
	if !a.ready {
		if err := a.ResetState(ctx); err != nil {
			return nil, err
		}
	}
	// Whatever the outcome, the form is no longer on screen.
	a.ready = false

	var (
		settled bool
		snap    searchSnapshot
	)
	err := a.session.Run(ctx, "assessor search",
		chromedp.SetValue(assessorLegalInput, q.Legal, chromedp.ByQuery),
		chromedp.SetValue(assessorOwnerInput, q.Owner, chromedp.ByQuery),
		chromedp.Click(assessorSearchButton, chromedp.ByQuery),
		chromedp.Poll(resultSettledJS(), &settled, chromedp.WithPollingTimeout(resultWait)),
		chromedp.Evaluate(searchSnapshotJS(), &snap),
	)
	if err != nil {
		a.session.Screenshot(ctx, "assessor_search")
		return nil, err
	}

	raw := toRawResponse(snap)
	zap.L().Debug("portal: assessor search",
		zap.String("legal", q.Legal),
		zap.String("owner", q.Owner),
		zap.Bool("no_records", raw.NoRecords),
		zap.String("count", raw.CountText),
		zap.Int("rows", len(raw.Rows)),
		zap.Bool("direct", raw.Detail != nil),
	)
	return raw, nil
}

func resultSettledJS() string {
	return `(` + anyOfJS(assessorCountBanner, assessorResultRows, assessorChangeButton) +
		` || ` + textContainsJS(assessorNoRecords) +
		` || location.href.toLowerCase().indexOf(` + jsString(assessorDetailPath) + `) >= 0)`
}

// toRawResponse maps a result page snapshot onto the provider response. A
// page with no listing whose URL is a detail page is a direct hit.
func toRawResponse(snap searchSnapshot) *linkage.RawResponse {
	raw := &linkage.RawResponse{
		NoRecords: snap.NoRecords,
		CountText: records.CleanText(snap.CountText),
		Rows:      decodeRows(snap.Rows),
	}
	for _, row := range raw.Rows {
		if len(row) > 0 {
			row[0].Href = resolveURL(snap.URL, row[0].Href)
		}
	}
	if len(raw.Rows) == 0 && !raw.NoRecords && strings.Contains(strings.ToLower(snap.URL), assessorDetailPath) {
		raw.Detail = &model.DetailRef{URL: snap.URL, Account: linkage.AccountFromURL(snap.URL)}
	}
	return raw
}

// FetchDetail opens the detail page behind ref and flattens it to rows.
func (a *Assessor) FetchDetail(ctx context.Context, ref model.DetailRef) ([]records.Row, error) {
	if ref.URL == "" {
		return nil, eris.Errorf("portal: detail ref for account %q has no url", ref.Account)
	}
	a.ready = false

	var raw [][]cellJSON
	err := a.session.Run(ctx, "assessor detail",
		chromedp.Navigate(ref.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(detailRowsJS, &raw),
	)
	if err != nil {
		a.session.Screenshot(ctx, "assessor_detail")
		return nil, err
	}
	return decodeRows(raw), nil
}

// ResetState returns to a blank search form.
func (a *Assessor) ResetState(ctx context.Context) error {
	err := a.session.Run(ctx, "assessor reset",
		chromedp.Navigate(a.searchURL),
		chromedp.WaitVisible(assessorLegalInput, chromedp.ByQuery),
		chromedp.WaitVisible(assessorSearchButton, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	a.ready = true
	return nil
}

var _ linkage.SearchProvider = (*Assessor)(nil)

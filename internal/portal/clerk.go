package portal

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/leads"
	"github.com/sells-group/probate-link/internal/records"
)

// County clerk real-property search form selectors.
const (
	clerkDateFrom     = `input[name="ctl00$ContentPlaceHolder1$txtFrom"]`
	clerkDateTo       = `input[name="ctl00$ContentPlaceHolder1$txtTo"]`
	clerkGrantor      = `input[name="ctl00$ContentPlaceHolder1$txtOR"]`
	clerkGrantee      = `input[name="ctl00$ContentPlaceHolder1$txtEE"]`
	clerkSearchButton = `input[name="ctl00$ContentPlaceHolder1$btnSearch"]`
	clerkNextButton   = `#ctl00_ContentPlaceHolder1_BtnNext`
	clerkNoRecords    = "No Records Found"
	clerkDateLayout   = "01/02/2006"

	tierStandardized = "TIER_1_EXACT_STD"
	tierNicknamePfx  = "TIER_2_NICK_"
)

// clerkTables are tried in order to find the results grid.
var clerkTables = []string{
	"table#ctl00_ContentPlaceHolder1_gvSearchResults",
	"table#ItemPlaceholderContainer",
	"table.table-striped.table-condensed",
	"table.table-striped",
	"table.grid",
	"table.results",
}

// ResultPage is one page of clerk search results.
type ResultPage struct {
	Found   bool          `json:"found"`
	Rows    []records.Row `json:"rows"`
	HasNext bool          `json:"has_next"`
}

// resultPager is the browser side of a paginated clerk search.
type resultPager interface {
	Submit(ctx context.Context, name string, from, to time.Time) error
	Page(ctx context.Context) (ResultPage, error)
	Next(ctx context.Context) error
}

// Pagination bounds for one clerk search.
type Pagination struct {
	MaxPages      int
	MaxEmptyPages int
}

// collectRecords runs one grantor search and groups the rows of up to
// MaxPages pages into records. Paging stops early after MaxEmptyPages
// consecutive pages without records, when a page repeats the previous
// page's first row, or when Next is missing or disabled.
func collectRecords(ctx context.Context, p resultPager, name string, from, to time.Time, pg Pagination) ([]records.Record, error) {
	if err := p.Submit(ctx, name, from, to); err != nil {
		return nil, err
	}

	var (
		out       []records.Record
		prevFirst string
		empty     int
	)
	for page := 0; page < pg.MaxPages; page++ {
		res, err := p.Page(ctx)
		if err != nil {
			return out, err
		}
		if !res.Found {
			break
		}

		first := firstCellText(res.Rows)
		if page > 0 && first != "" && first == prevFirst {
			zap.L().Debug("portal: clerk page repeats previous page", zap.String("name", name), zap.Int("page", page+1))
			break
		}
		prevFirst = first

		recs := records.Group(res.Rows)
		if len(recs) == 0 {
			empty++
			if empty >= pg.MaxEmptyPages {
				break
			}
		} else {
			empty = 0
			out = append(out, recs...)
		}

		if !res.HasNext || page+1 >= pg.MaxPages {
			break
		}
		if err := p.Next(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// firstCellText returns the first cell of the first data row.
func firstCellText(rows []records.Row) string {
	for _, r := range rows {
		if len(r) == 0 || r[0].Text == "" {
			continue
		}
		return records.CleanText(r[0].Text)
	}
	return ""
}

// searchTerm is one name submitted to the clerk index.
type searchTerm struct {
	Name string
	Tier string
}

// searchTerms lists the grantor names to search for a decedent: the
// standardized name, then up to maxVariants nickname variants. Names that
// standardize to an already listed term are skipped.
func searchTerms(last, first string, maxVariants int) []searchTerm {
	seen := make(map[string]bool)
	var terms []searchTerm

	std := leads.StandardizeForSearch(last, first)
	if std == "" {
		return nil
	}
	terms = append(terms, searchTerm{Name: std, Tier: tierStandardized})
	seen[std] = true

	added := 0
	for _, nick := range leads.NicknameVariants(first) {
		if added >= maxVariants {
			break
		}
		name := leads.StandardizeForSearch(last, nick)
		if seen[name] {
			continue
		}
		seen[name] = true
		terms = append(terms, searchTerm{Name: name, Tier: tierNicknamePfx + nick})
		added++
	}
	return terms
}

// Clerk searches the county clerk's real-property index by grantor name.
type Clerk struct {
	session     *Session
	url         string
	pagination  Pagination
	window      time.Duration
	maxVariants int
}

// NewClerk creates a clerk search bound to session.
func NewClerk(session *Session, cfg config.PortalConfig) *Clerk {
	days := cfg.SearchWindowDays
	if days <= 0 {
		days = 365
	}
	return &Clerk{
		session:     session,
		url:         cfg.ClerkURL,
		pagination:  Pagination{MaxPages: max(cfg.MaxPages, 1), MaxEmptyPages: max(cfg.MaxEmptyPages, 1)},
		window:      time.Duration(days) * 24 * time.Hour,
		maxVariants: cfg.MaxNameVariants,
	}
}

// Discover searches every name term for lead within the filing-date window
// and returns one output row per (record, lot, party). A failed term is
// logged and skipped; the error is returned only when every term failed.
func (c *Clerk) Discover(ctx context.Context, lead leads.ProbateLead) ([]leads.Row, error) {
	return discover(ctx, c, lead, c.window, c.pagination, c.maxVariants)
}

func discover(ctx context.Context, p resultPager, lead leads.ProbateLead, window time.Duration, pg Pagination, maxVariants int) ([]leads.Row, error) {
	terms := searchTerms(lead.DecedentLast, lead.DecedentFirst, maxVariants)
	if len(terms) == 0 {
		return nil, eris.Errorf("portal: lead %s has no searchable name", lead.CaseNumber)
	}
	from, to := lead.FilingDate.Add(-window), lead.FilingDate.Add(window)

	var (
		out     []leads.Row
		lastErr error
		failed  int
	)
	for _, term := range terms {
		if ctx.Err() != nil {
			return out, eris.Wrap(ctx.Err(), "portal: discover cancelled")
		}
		recs, err := collectRecords(ctx, p, term.Name, from, to, pg)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("portal: clerk search failed",
				zap.String("case", lead.CaseNumber),
				zap.String("name", term.Name),
				zap.String("tier", term.Tier),
				zap.Error(err),
			)
		}
		for _, pr := range records.Expand(recs) {
			out = append(out, leads.PartyRecord(lead, pr, term.Name, term.Tier))
		}
		zap.L().Debug("portal: clerk search",
			zap.String("case", lead.CaseNumber),
			zap.String("name", term.Name),
			zap.String("tier", term.Tier),
			zap.Int("records", len(recs)),
		)
	}

	if failed == len(terms) {
		return out, eris.Wrapf(lastErr, "portal: all %d clerk searches failed for %s", failed, lead.CaseNumber)
	}
	return out, nil
}

// Submit fills the search form with a grantor-only query and runs it.
func (c *Clerk) Submit(ctx context.Context, name string, from, to time.Time) error {
	var settled bool
	err := c.session.Run(ctx, "clerk search",
		chromedp.Navigate(c.url),
		chromedp.WaitVisible(clerkGrantor, chromedp.ByQuery),
		chromedp.WaitVisible(clerkSearchButton, chromedp.ByQuery),
		chromedp.SetValue(clerkDateFrom, from.Format(clerkDateLayout), chromedp.ByQuery),
		chromedp.SetValue(clerkDateTo, to.Format(clerkDateLayout), chromedp.ByQuery),
		chromedp.SetValue(clerkGrantor, name, chromedp.ByQuery),
		chromedp.SetValue(clerkGrantee, "", chromedp.ByQuery),
		chromedp.Click(clerkSearchButton, chromedp.ByQuery),
		chromedp.Poll(clerkSettledJS(), &settled, chromedp.WithPollingTimeout(resultWait)),
	)
	if err != nil {
		c.session.Screenshot(ctx, "clerk_search")
	}
	return err
}

// Page snapshots the current result page.
func (c *Clerk) Page(ctx context.Context) (ResultPage, error) {
	var snap struct {
		Found   bool         `json:"found"`
		Rows    [][]cellJSON `json:"rows"`
		HasNext bool         `json:"has_next"`
	}
	if err := c.session.Run(ctx, "clerk page", chromedp.Evaluate(clerkPageJS(), &snap)); err != nil {
		return ResultPage{}, err
	}
	return ResultPage{Found: snap.Found, Rows: decodeRows(snap.Rows), HasNext: snap.HasNext}, nil
}

// Next clicks the Next button and waits for the grid to reload.
func (c *Clerk) Next(ctx context.Context) error {
	return c.session.Run(ctx, "clerk next page",
		chromedp.Click(clerkNextButton, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func clerkTableJS() string {
	var b strings.Builder
	b.WriteString(`(() => {
  for (const sel of [`)
	for i, sel := range clerkTables {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(jsString(sel))
	}
	b.WriteString(`]) {
    for (const t of document.querySelectorAll(sel)) {
      if (t.offsetParent !== null && t.rows.length > 1) return t;
    }
  }
  for (const t of document.querySelectorAll('table')) {
    if (t.offsetParent !== null && t.innerText.indexOf('File Number') >= 0) return t;
  }
  return null;
})()`)
	return b.String()
}

func clerkSettledJS() string {
	return `(` + clerkTableJS() + ` !== null || ` + textContainsJS(clerkNoRecords) + `)`
}

func clerkPageJS() string {
	return `(() => {
  const table = ` + clerkTableJS() + `;
  const next = document.querySelector(` + jsString(clerkNextButton) + `);
  const cls = next ? (next.getAttribute('class') || '').toLowerCase() : '';
  const hasNext = !!next && next.offsetParent !== null && !next.disabled &&
    next.getAttribute('disabled') === null && cls.indexOf('disabled') < 0;
  return {
    found: table !== null,
    rows: table ? ` + rowsJS(`table.querySelectorAll(':scope > tbody > tr, :scope > tr')`) + ` : [],
    has_next: hasNext,
  };
})()`
}

var _ resultPager = (*Clerk)(nil)

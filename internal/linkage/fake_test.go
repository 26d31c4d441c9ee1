package linkage

import (
	"context"
	"errors"
	"sync"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
)

// fakeProvider is a scripted SearchProvider that records every call.
type fakeProvider struct {
	mu          sync.Mutex
	search      func(q Query) (*RawResponse, error)
	details     map[string][]records.Row
	queries     []Query
	detailCalls map[string]int
	resets      int
}

func newFakeProvider(search func(q Query) (*RawResponse, error)) *fakeProvider {
	return &fakeProvider{
		search:      search,
		details:     make(map[string][]records.Row),
		detailCalls: make(map[string]int),
	}
}

func (f *fakeProvider) Execute(_ context.Context, q Query) (*RawResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.search(q)
}

func (f *fakeProvider) FetchDetail(_ context.Context, ref model.DetailRef) ([]records.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := AccountFromURL(ref.URL)
	f.detailCalls[acct]++
	rows, ok := f.details[acct]
	if !ok {
		return nil, errors.New("detail page failed to load")
	}
	return rows, nil
}

func (f *fakeProvider) ResetState(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeProvider) addDetail(acct, owner, legal string) {
	f.details[acct] = detailRows(acct, owner, legal)
}

func detailURL(acct string) string {
	return "https://public.hcad.org/records/details.asp?cntry=harris&acct=" + acct
}

func summaryRow(acct, owner, address string) records.Row {
	return records.Row{
		{Text: acct, Href: detailURL(acct)},
		{Text: owner},
		{Text: address},
		{Text: "77001"},
		{Text: "1,500"},
		{Text: "$100,000"},
		{Text: "$90,000"},
	}
}

func summary(acct, owner, address string) model.CandidateSummary {
	s, _ := records.DecodeSummary(summaryRow(acct, owner, address))
	return s
}

func detailRows(acct, owner, legal string) []records.Row {
	return []records.Row{
		records.TextRow("Account Number:", acct),
		records.TextRow("Owner Name & Mailing Address:", owner+"\n1 MAIN ST\nHOUSTON TX 77001"),
		records.TextRow("Legal Description:", legal),
	}
}

func directHit(acct string) *RawResponse {
	return &RawResponse{Detail: &model.DetailRef{URL: detailURL(acct)}}
}

func listing(count string, rows ...records.Row) *RawResponse {
	return &RawResponse{CountText: count, Rows: rows}
}

func noRecords() *RawResponse {
	return &RawResponse{NoRecords: true}
}

func testEngine() config.EngineConfig {
	return config.EngineConfig{
		ThresholdsConfig: DefaultThresholds(),
		RetryBudget:      2,
		CommonSurnames:   config.DefaultCommonSurnames,
	}
}

func doeLead() model.Lead {
	return model.Lead{
		CaseNumber:    "500123",
		FileNumber:    "RP-2024-100",
		DecedentFirst: "JOHN",
		DecedentLast:  "DOE",
		Legal: model.LegalDescription{
			Lot:         "5.0",
			Block:       "3",
			Subdivision: "oak ridge",
		},
		Confidence: model.ConfidenceHigh,
	}
}

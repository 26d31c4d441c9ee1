package portal

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/sells-group/probate-link/internal/records"
)

// cellJSON mirrors the objects built by tableRowsJS.
type cellJSON struct {
	Text   string       `json:"text"`
	Href   string       `json:"href,omitempty"`
	Nested [][]cellJSON `json:"nested,omitempty"`
}

// tableRowsJS returns a script that flattens every row matched by selector
// into arrays of {text, href, nested}.
func tableRowsJS(selector string) string {
	return rowsJS(`document.querySelectorAll(` + jsString(selector) + `)`)
}

// rowsJS flattens the rows yielded by the JavaScript expression rowsExpr.
// Nested tables inside a cell are flattened recursively so legal
// description blocks survive.
func rowsJS(rowsExpr string) string {
	return `(() => {
  const cellOf = (td) => {
    const a = td.querySelector('a');
    const nested = [];
    td.querySelectorAll(':scope table tr').forEach((tr) => nested.push(rowOf(tr)));
    return {
      text: td.innerText || '',
      href: a ? a.href : '',
      nested: nested,
    };
  };
  const rowOf = (tr) => Array.from(tr.children)
    .filter((c) => c.tagName === 'TD' || c.tagName === 'TH')
    .map(cellOf);
  return Array.from(` + rowsExpr + ` || []).map(rowOf);
})()`
}

// decodeRows converts script output to records rows.
func decodeRows(raw [][]cellJSON) []records.Row {
	out := make([]records.Row, 0, len(raw))
	for _, r := range raw {
		out = append(out, decodeRow(r))
	}
	return out
}

func decodeRow(r []cellJSON) records.Row {
	row := make(records.Row, len(r))
	for i, c := range r {
		cell := records.Cell{Text: c.Text, Href: c.Href}
		if len(c.Nested) > 0 {
			cell.Nested = decodeRows(c.Nested)
		}
		row[i] = cell
	}
	return row
}

// resolveURL makes href absolute against base. Unparseable input is
// returned unchanged.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// anyOfJS returns a script that is truthy once any selector matches.
func anyOfJS(selectors ...string) string {
	return `document.querySelector(` + jsString(strings.Join(selectors, ", ")) + `) !== null`
}

// textContainsJS returns a script that is truthy once the page body
// contains text.
func textContainsJS(text string) string {
	return `(!!document.body && document.body.innerText.indexOf(` + jsString(text) + `) >= 0)`
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

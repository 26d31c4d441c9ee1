package leads

import (
	"regexp"
	"strings"
)

// nicknames maps a canonical first name to its common nicknames. Order is
// preserved so variant lists are deterministic.
var nicknames = []struct {
	Canonical string
	Nicks     []string
}{
	{"JOHN", []string{"JOHNNY", "JOHNNIE", "JON"}},
	{"WILLIAM", []string{"BILL", "BILLY", "WILL", "WILLIE", "LIAM"}},
	{"ROBERT", []string{"BOB", "ROBBIE", "ROBBY", "BERT", "ROB"}},
	{"JAMES", []string{"JIM", "JIMMY"}},
	{"RICHARD", []string{"DICK", "RICH", "RICK", "RICKY"}},
	{"CHARLES", []string{"CHUCK", "CHARLIE", "CHAS"}},
	{"JOSEPH", []string{"JOE", "JOEY"}},
	{"THOMAS", []string{"TOM", "TOMMY"}},
	{"MICHAEL", []string{"MIKE", "MICKEY", "MICK"}},
	{"DAVID", []string{"DAVE", "DAVY"}},
	{"ELIZABETH", []string{"LIZ", "LIZZIE", "BETH", "BETTY", "LISA", "LIBBY", "ELLE"}},
	{"MARGARET", []string{"MAGGIE", "PEG", "PEGGY", "RITA", "DAISY"}},
	{"CATHERINE", []string{"KATE", "KATHY", "CATHY", "KITTY", "KATIE"}},
	{"KATHERINE", []string{"KATE", "KATHY", "CATHY", "KITTY", "KATIE"}},
	{"SUSAN", []string{"SUE", "SUZIE", "SUZY"}},
	{"PATRICIA", []string{"PAT", "PATTY", "TRISH", "TRICIA"}},
}

// NicknameVariants returns the alternate spellings of a first name: for a
// canonical name its nicknames, for a nickname its canonical forms and
// sibling nicknames. The input itself is never returned.
func NicknameVariants(first string) []string {
	name := strings.ToUpper(strings.TrimSpace(first))
	if name == "" {
		return nil
	}

	seen := map[string]bool{name: true}
	var out []string
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, entry := range nicknames {
		isNick := false
		for _, n := range entry.Nicks {
			if n == name {
				isNick = true
				break
			}
		}
		if entry.Canonical != name && !isNick {
			continue
		}
		add(entry.Canonical)
		for _, n := range entry.Nicks {
			add(n)
		}
	}
	return out
}

var (
	nameJunkRE   = regexp.MustCompile(`[^\w\s'-]`)
	nameSuffixRE = regexp.MustCompile(`(?i)(\s+|,\s*)(JR|SR|I{1,3}|IV|V|VI{0,3}|IX|X)$`)
)

func cleanNamePart(s string) string {
	return strings.TrimSpace(strings.ToUpper(nameJunkRE.ReplaceAllString(s, "")))
}

// StandardizeForSearch builds the "LAST FIRST" query the clerk index expects:
// punctuation and a trailing generational suffix are removed from the
// surname, and only the first token of the given names is kept.
func StandardizeForSearch(last, first string) string {
	cleanedLast := strings.TrimSpace(nameSuffixRE.ReplaceAllString(cleanNamePart(last), ""))

	var firstToken string
	if fields := strings.Fields(cleanNamePart(first)); len(fields) > 0 {
		firstToken = fields[0]
	}
	return strings.TrimSpace(cleanedLast + " " + firstToken)
}

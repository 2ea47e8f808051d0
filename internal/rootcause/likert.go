package rootcause

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/raiox/internal/model"
)

// ParseLikert accepts a numeric answer (1..5) or a label in any case, with
// or without accents, using spaces, hyphens or underscores as separators.
func ParseLikert(raw string) (model.Likert, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		l := model.Likert(n)
		return l, l.Valid()
	}
	return model.LikertFromName(canonicalLabel(s))
}

func canonicalLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	out = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, out)
	return strings.Join(strings.FieldsFunc(out, func(r rune) bool { return r == '_' }), "_")
}

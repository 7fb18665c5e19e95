package signature

import (
	stderrors "errors"
	"regexp"
	"strings"

	"github.com/wippyai/syncbridge/errors"
)

// Param is one declared parameter of a native callback.
type Param struct {
	Name string
	Type string
	// Size names the parameter carrying the length of a byte buffer.
	Size string
}

// Signature is a parsed native prototype such as
// "osync_bool (OSyncObjFormat *format, const char *data, unsigned int size)".
// The return type part is optional.
type Signature struct {
	Text   string
	Result string
	Params []Param
	params string
}

var errUnbalanced = stderrors.New("unbalanced parentheses")

var (
	paramPattern = regexp.MustCompile(`^(.*[\s*])([_A-Za-z][_A-Za-z0-9]*)$`)
	starSpacing  = regexp.MustCompile(`\s*\*\s*`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// Parse parses a prototype or a bare parameter list.
func Parse(text string) (*Signature, error) {
	sig := &Signature{Text: text}

	list := text
	if open := strings.IndexByte(text, '('); open >= 0 {
		end := strings.LastIndexByte(text, ')')
		if end < open {
			return nil, errors.ParseFailed("signature "+quote(text), errUnbalanced)
		}
		sig.Result = NormalizeType(text[:open])
		list = text[open+1 : end]
	}
	sig.params = list

	trimmed := strings.TrimSpace(list)
	if trimmed == "" || trimmed == "void" {
		return sig, nil
	}

	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		m := paramPattern.FindStringSubmatch(raw)
		if m == nil {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Detail("cannot split %q into type and name", raw).
				Build()
		}
		sig.Params = append(sig.Params, Param{Name: m[2], Type: NormalizeType(m[1])})
	}
	return sig, nil
}

// NormalizeType strips blanks around '*' and collapses inner whitespace:
// "const char *" becomes "const char*", "OSyncError * *" becomes "OSyncError**".
func NormalizeType(t string) string {
	t = starSpacing.ReplaceAllString(t, "*")
	t = spaceRun.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Param returns the parsed parameter with the given name.
func (s *Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Lookup finds the declared type of name by scanning the parameter text.
// A match must start and end on identifier boundaries and be the last
// identifier of its parameter, so "info" never resolves inside
// "pluginInfo" and "int" never resolves inside "unsigned int size".
func (s *Signature) Lookup(name string) (string, bool) {
	text := s.params
	if name == "" {
		return "", false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return "", false
		}
		start := from + i
		end := start + len(name)
		from = end

		if start > 0 && isIdent(text[start-1]) {
			continue
		}
		if end < len(text) && isIdent(text[end]) {
			continue
		}
		rest := strings.TrimLeft(text[end:], " \t\r\n")
		if rest != "" && rest[0] != ',' {
			continue
		}
		begin := strings.LastIndexByte(text[:start], ',') + 1
		typ := NormalizeType(text[begin:start])
		if typ == "" {
			continue
		}
		return typ, true
	}
	return "", false
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func quote(s string) string {
	return "\"" + s + "\""
}

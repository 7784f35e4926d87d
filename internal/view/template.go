package view

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cghanke/libfs/internal/fserr"
)

// placeholderRx matches a %{key} substitution in a filename template.
var placeholderRx = regexp.MustCompile(`%\{([^}]+)\}`)

// Template is a compiled filename template (fn_gen): an ordered list of
// keys and the regex that reverses Format back into key/value pairs,
// per spec.md §4.4.
type Template struct {
	raw  string
	keys []string
	re   *regexp.Regexp
}

// Compile builds a Template from a raw fn_gen string such as
// "%{tracknumber} -- %{title}". Each %{key} becomes a capturing group
// (.*) in the reverse regex; literal text between placeholders is quoted
// so it cannot be misread as regex syntax.
func Compile(fnGen string) (*Template, error) {
	locs := placeholderRx.FindAllStringSubmatchIndex(fnGen, -1)
	if len(locs) == 0 {
		return nil, fmt.Errorf("view: fn_gen %q has no %%{key} placeholders", fnGen)
	}

	var keys []string
	var pattern strings.Builder
	pattern.WriteByte('^')
	pos := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		keyStart, keyEnd := loc[2], loc[3]
		pattern.WriteString(regexp.QuoteMeta(fnGen[pos:start]))
		pattern.WriteString("(.*)")
		keys = append(keys, fnGen[keyStart:keyEnd])
		pos = end
	}
	pattern.WriteString(regexp.QuoteMeta(fnGen[pos:]))
	pattern.WriteByte('$')

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("view: fn_gen %q compiled to invalid regex: %w", fnGen, err)
	}
	return &Template{raw: fnGen, keys: keys, re: re}, nil
}

// Keys returns the ordered list of keys the template substitutes.
func (t *Template) Keys() []string { return append([]string(nil), t.keys...) }

// Raw returns the original fn_gen string.
func (t *Template) Raw() string { return t.raw }

// Format substitutes every %{key} with values[key]'s string form.
func (t *Template) Format(values map[string]string) string {
	return placeholderRx.ReplaceAllStringFunc(t.raw, func(m string) string {
		key := m[2 : len(m)-1]
		return values[key]
	})
}

// Parse reverses Format: it matches name against the compiled regex and
// zips the captured groups with the key list. A non-match is EINVAL, per
// spec.md §4.4 and §4.6's rename contract.
func (t *Template) Parse(name string) (map[string]string, error) {
	m := t.re.FindStringSubmatch(name)
	if m == nil {
		return nil, fserr.NewPluginError("parse_filename", fserr.ErrInval, fmt.Errorf("view: %q does not match template %q", name, t.raw))
	}
	values := make(map[string]string, len(t.keys))
	for i, key := range t.keys {
		values[key] = m[i+1]
	}
	return values, nil
}

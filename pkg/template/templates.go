package template

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"regexp"
	"strings"
	texttmpl "text/template"
	"time"

	"dispatch-service/internal/domain"
)

// Rendered is the per-channel output of a template set.
type Rendered struct {
	Title string
	Body  string
	HTML  string
}

type Engine struct {
	loc *time.Location
}

func NewEngine() *Engine {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

func (e *Engine) funcs() texttmpl.FuncMap {
	return texttmpl.FuncMap{
		"date":      e.FormatDate,
		"plural":    Pluralize,
		"summarize": SummarizeList,
		"yesno":     YesNo,
		"firstname": FirstName,
	}
}

// RenderChannel renders one channel's template from the set. A parse or
// execute failure falls back to literal {{var}} substitution so a malformed
// conditional never blocks delivery.
func (e *Engine) RenderChannel(set map[string]domain.ChannelTemplate, channel string, vars map[string]interface{}) (Rendered, error) {
	tpl, ok := set[channel]
	if !ok {
		return Rendered{}, fmt.Errorf("no template for channel: %s", channel)
	}

	out := Rendered{
		Title: e.renderText(tpl.Title, vars),
		Body:  e.renderText(tpl.Body, vars),
	}
	if tpl.HTML != "" {
		out.HTML = e.renderHTML(tpl.HTML, vars)
	}
	return out, nil
}

func (e *Engine) renderText(src string, vars map[string]interface{}) string {
	if src == "" {
		return ""
	}
	tmpl, err := texttmpl.New("body").Funcs(e.funcs()).Parse(src)
	if err != nil {
		return Substitute(src, vars)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return Substitute(src, vars)
	}
	return buf.String()
}

func (e *Engine) renderHTML(src string, vars map[string]interface{}) string {
	tmpl, err := htmltmpl.New("html").Funcs(htmltmpl.FuncMap(e.funcs())).Parse(src)
	if err != nil {
		return Substitute(src, vars)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return Substitute(src, vars)
	}
	return buf.String()
}

var varPattern = regexp.MustCompile(`\{\{\s*\.?([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Substitute replaces {{var}} / {{.var}} tokens with their string value,
// leaving unknown tokens untouched. It is the degraded render path.
func Substitute(src string, vars map[string]interface{}) string {
	return varPattern.ReplaceAllStringFunc(src, func(tok string) string {
		m := varPattern.FindStringSubmatch(tok)
		if m == nil {
			return tok
		}
		if v, ok := vars[m[1]]; ok {
			return Stringify(v)
		}
		return tok
	})
}

// Stringify renders a variable for message text. Slices become count-based
// phrases; raw Go syntax never reaches a user.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return YesNo(val)
	case time.Time:
		return val.Format("02 Jan 2006 15:04")
	case []string:
		return SummarizeList(val, "item", "items")
	case []interface{}:
		strs := make([]string, len(val))
		for i, it := range val {
			strs[i] = Stringify(it)
		}
		return SummarizeList(strs, "item", "items")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatDate formats t in the engine's fixed timezone.
func (e *Engine) FormatDate(t time.Time) string {
	return t.In(e.loc).Format("02 Jan 2006 15:04")
}

// Pluralize picks the singular or plural form for n.
func Pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// SummarizeList collapses a list into a short phrase: empty → "none",
// one element → the element, otherwise a count.
func SummarizeList(items []string, singular, plural string) string {
	switch len(items) {
	case 0:
		return "none"
	case 1:
		return items[0]
	default:
		return Pluralize(len(items), singular, plural)
	}
}

func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FirstName extracts the first name from a full name.
func FirstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

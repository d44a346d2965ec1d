package printing

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

// InvoiceTemplateName is the embedded invoice layout
const InvoiceTemplateName = "invoice.html"

// TemplateEngine renders the embedded HTML layouts with invoice data.
// Templates are parsed once; Render is safe for concurrent use.
type TemplateEngine struct {
	funcMap   template.FuncMap
	templates *template.Template
}

// TemplateEngineOption configures the template engine
type TemplateEngineOption func(*TemplateEngine)

// WithFuncs adds or overrides template functions
func WithFuncs(funcs template.FuncMap) TemplateEngineOption {
	return func(e *TemplateEngine) {
		maps.Copy(e.funcMap, funcs)
	}
}

// NewTemplateEngine parses the embedded templates
func NewTemplateEngine(opts ...TemplateEngineOption) (*TemplateEngine, error) {
	e := &TemplateEngine{}
	e.funcMap = template.FuncMap{
		// Money formatting
		"formatMoney":    formatMoney,
		"formatMoneyRaw": formatMoneyRaw,
		"currencySymbol": currencySymbol,

		// Date formatting
		"formatDate":     formatDate,
		"formatDateTime": formatDateTime,

		// Number formatting
		"formatRate":    formatRate,
		"formatPercent": formatPercent,
		"formatHours":   formatHours,

		// String utilities
		"upper":      strings.ToUpper,
		"title":      titleCase,
		"statusText": statusText,
		"shortUUID":  shortUUID,
		"truncate":   truncate,

		// Arithmetic
		"add": add,
		"sub": sub,
	}
	for _, opt := range opts {
		opt(e)
	}

	tmpl, err := template.New("documents").Funcs(e.funcMap).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, NewRenderError(ErrCodeInvalidHTML, "failed to parse templates", err)
	}
	e.templates = tmpl
	return e, nil
}

// Render executes the named template with data
func (e *TemplateEngine) Render(ctx context.Context, name string, data any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template "+name, err)
	}
	return buf.String(), nil
}

// RenderString parses and executes an ad-hoc template with the engine functions
func (e *TemplateEngine) RenderString(ctx context.Context, name, content string, data any) (string, error) {
	if content == "" {
		return "", NewRenderError(ErrCodeInvalidHTML, "template content is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Funcs(e.funcMap).Parse(content)
	if err != nil {
		return "", NewRenderError(ErrCodeInvalidHTML, "failed to parse template", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to execute template", err)
	}
	return buf.String(), nil
}

// =============================================================================
// Template Functions - Money Formatting
// =============================================================================

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"SGD": "S$",
	"AED": "AED ",
	"JPY": "¥",
}

// currencySymbol returns the display symbol, or the code followed by a space
func currencySymbol(code string) string {
	code = strings.ToUpper(code)
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	if code == "" {
		return ""
	}
	return code + " "
}

// formatMoney formats an amount with the currency symbol.
// Rupee amounts use lakh grouping: 1234567.5 INR -> "₹12,34,567.50"
func formatMoney(v any, code string) string {
	d := toDecimal(v)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + currencySymbol(code) + groupAmount(d, strings.EqualFold(code, "INR"))
}

// formatMoneyRaw formats an amount with western grouping and no symbol
func formatMoneyRaw(v any) string {
	d := toDecimal(v)
	if d.IsNegative() {
		return "-" + groupAmount(d.Abs(), false)
	}
	return groupAmount(d, false)
}

func groupAmount(d decimal.Decimal, indian bool) string {
	intPart, decPart, _ := strings.Cut(d.StringFixed(2), ".")

	var digits []string
	if indian && len(intPart) > 3 {
		// last three digits, then pairs
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		for len(head) > 2 {
			digits = append([]string{head[len(head)-2:]}, digits...)
			head = head[:len(head)-2]
		}
		digits = append([]string{head}, digits...)
		digits = append(digits, tail)
	} else {
		for len(intPart) > 3 {
			digits = append([]string{intPart[len(intPart)-3:]}, digits...)
			intPart = intPart[:len(intPart)-3]
		}
		digits = append([]string{intPart}, digits...)
	}
	return strings.Join(digits, ",") + "." + decPart
}

// =============================================================================
// Template Functions - Date and Number Formatting
// =============================================================================

// formatDate renders a calendar date: "18 Oct 2026"
func formatDate(v any) string {
	t := toTime(v)
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

// formatDateTime renders an instant in UTC
func formatDateTime(v any) string {
	t := toTime(v)
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006 15:04 MST")
}

// formatRate renders an exchange rate without trailing zeros
func formatRate(v any) string {
	return toDecimal(v).String()
}

// formatPercent renders a 0-100 percentage: 62.5 -> "62.5%"
func formatPercent(v any) string {
	return toDecimal(v).String() + "%"
}

// formatHours converts billed minutes into hours: 90 -> "1.50"
func formatHours(minutes int) string {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).StringFixed(2)
}

// =============================================================================
// Template Functions - String Utilities
// =============================================================================

// titleCase converts string to title case using proper Unicode handling
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// statusText turns a status code into a label: "partially_paid" -> "Partially Paid"
func statusText(status any) string {
	return titleCase(strings.ReplaceAll(fmt.Sprint(status), "_", " "))
}

// shortUUID returns the first 8 characters of a UUID
func shortUUID(id uuid.UUID) string {
	return id.String()[:8]
}

// truncate truncates a string to max runes, appending "..."
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func add(a, b any) decimal.Decimal {
	return toDecimal(a).Add(toDecimal(b))
}

func sub(a, b any) decimal.Decimal {
	return toDecimal(a).Sub(toDecimal(b))
}

// =============================================================================
// Conversions
// =============================================================================

func toDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero
		}
		return *val
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case float64:
		return decimal.NewFromFloat(val)
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func toTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val == nil {
			return time.Time{}
		}
		return *val
	default:
		return time.Time{}
	}
}

package billing

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lexdesk/backend/internal/domain/shared"
)

// DefaultOfficeCode is used for billing locations missing from the directory
const DefaultOfficeCode = "M"

// maxSuffixProbes bounds the collision walk for a single allocation
const maxSuffixProbes = 1000

var officeCodePattern = regexp.MustCompile(`^[A-Z]+$`)

// OfficeDirectory resolves billing locations to office codes
type OfficeDirectory struct {
	codes       map[string]string
	defaultCode string
}

// NewOfficeDirectory builds a directory from location -> code pairs.
// Location lookups are case-insensitive; codes must be upper-case letters.
func NewOfficeDirectory(offices map[string]string, defaultCode string) (*OfficeDirectory, error) {
	if defaultCode == "" {
		defaultCode = DefaultOfficeCode
	}
	defaultCode = strings.ToUpper(defaultCode)
	if !officeCodePattern.MatchString(defaultCode) {
		return nil, fmt.Errorf("invalid default office code %q", defaultCode)
	}
	codes := make(map[string]string, len(offices))
	for location, code := range offices {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !officeCodePattern.MatchString(code) {
			return nil, fmt.Errorf("invalid office code %q for location %q", code, location)
		}
		codes[normalizeLocation(location)] = code
	}
	return &OfficeDirectory{codes: codes, defaultCode: defaultCode}, nil
}

// DefaultOfficeDirectory returns the firm's standard four offices
func DefaultOfficeDirectory() *OfficeDirectory {
	d, _ := NewOfficeDirectory(map[string]string{
		"mumbai":    "M",
		"delhi":     "D",
		"bengaluru": "B",
		"chennai":   "C",
	}, DefaultOfficeCode)
	return d
}

// Resolve returns the office code for a billing location
func (d *OfficeDirectory) Resolve(location string) string {
	if code, ok := d.codes[normalizeLocation(location)]; ok {
		return code
	}
	return d.defaultCode
}

// Codes returns every known office code, including the default, sorted
func (d *OfficeDirectory) Codes() []string {
	seen := map[string]bool{d.defaultCode: true}
	out := []string{d.defaultCode}
	for _, code := range d.codes {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// SequenceSuffix maps a 0-based index to a bijective base-26 letter string:
// 0 -> A, 25 -> Z, 26 -> AA, 27 -> AB, 52 -> BA.
func SequenceSuffix(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for index >= 0 {
		buf = append(buf, byte('A'+index%26))
		index = index/26 - 1
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// NumberPattern matches canonical invoice numbers for one office code
func NumberPattern(code string) *regexp.Regexp {
	return regexp.MustCompile(`^\d{8}-(` + regexp.QuoteMeta(code) + `)(-[A-Z]+)?$`)
}

// FormatInvoiceNumber renders the ordinal-th (1-based) number of a day
func FormatInvoiceNumber(day time.Time, code string, ordinal int) string {
	base := day.Format("02012006") + "-" + code
	if ordinal <= 1 {
		return base
	}
	return base + "-" + SequenceSuffix(ordinal-2)
}

// ChildInvoiceNumber is the number of the seq-th (1-based) split child
func ChildInvoiceNumber(parent string, seq int) string {
	return fmt.Sprintf("%s-%d", parent, seq)
}

// NumberLedger is the read side the allocator needs from the record store
type NumberLedger interface {
	// ListNumbersBetween returns invoice numbers dated within [start, end]
	ListNumbersBetween(ctx context.Context, start, end time.Time) ([]string, error)
	// ExistsByNumber reports whether any invoice already uses number
	ExistsByNumber(ctx context.Context, number string) (bool, error)
}

// NumberAllocator derives date- and office-scoped invoice numbers.
// Dates are civil calendar dates: only their year, month and day count.
type NumberAllocator struct {
	offices *OfficeDirectory
}

// NewNumberAllocator creates an allocator for the given offices
func NewNumberAllocator(offices *OfficeDirectory) *NumberAllocator {
	if offices == nil {
		offices = DefaultOfficeDirectory()
	}
	return &NumberAllocator{offices: offices}
}

// Offices returns the allocator's office directory
func (a *NumberAllocator) Offices() *OfficeDirectory {
	return a.offices
}

// CivilDate normalizes date to midnight UTC of its own calendar day, the
// form invoice dates are stored in
func CivilDate(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// DayWindow returns the first and last stored instant of date's calendar day
func (a *NumberAllocator) DayWindow(date time.Time) (time.Time, time.Time) {
	start := CivilDate(date)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// ScopeKey identifies the office/day scope that allocations serialize on
func (a *NumberAllocator) ScopeKey(date time.Time, billingLocation string) string {
	return a.offices.Resolve(billingLocation) + "|" + CivilDate(date).Format("02012006")
}

// Next allocates the next free number for date and billingLocation.
// Numbers that do not match the canonical pattern are not counted.
func (a *NumberAllocator) Next(ctx context.Context, ledger NumberLedger, date time.Time, billingLocation string) (string, error) {
	code := a.offices.Resolve(billingLocation)
	start, end := a.DayWindow(date)

	numbers, err := ledger.ListNumbersBetween(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("list invoice numbers: %w", err)
	}
	pattern := NumberPattern(code)
	count := 0
	for _, n := range numbers {
		if pattern.MatchString(n) {
			count++
		}
	}

	day := CivilDate(date)
	for probe := 0; probe < maxSuffixProbes; probe++ {
		candidate := FormatInvoiceNumber(day, code, count+1+probe)
		exists, err := ledger.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check invoice number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", shared.NewDomainError(shared.CodeConflict, "Could not allocate a free invoice number").
		WithDetail("scope", a.ScopeKey(date, billingLocation))
}

// ValidateManual checks a caller-supplied number against the canonical
// pattern for any known office and against existing invoices
func (a *NumberAllocator) ValidateManual(ctx context.Context, ledger NumberLedger, number string) error {
	number = strings.TrimSpace(number)
	matched := false
	for _, code := range a.offices.Codes() {
		if NumberPattern(code).MatchString(number) {
			matched = true
			break
		}
	}
	if !matched {
		return shared.NewValidationError("Invoice number does not match DDMMYYYY-OFFICE[-SEQ]").
			WithDetail("invoice_number", number)
	}
	exists, err := ledger.ExistsByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("check invoice number: %w", err)
	}
	if exists {
		return ErrDuplicateInvoiceNumber.WithDetail("invoice_number", number)
	}
	return nil
}

// ErrDuplicateInvoiceNumber is returned when a number is already taken
var ErrDuplicateInvoiceNumber = shared.NewDomainError(shared.CodeConflict, "Invoice number already exists")

// Package record turns a resolved cadastral aggregate and the chosen
// categories into a flat CRM property record and an itemized summary.
package record

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/property-map/internal/cadastre"
)

// UnknownLocation is the display name used when neither a street nor a
// municipality is known.
const UnknownLocation = "Unknown location"

// ErrValidation marks a caller-side precondition violation.
var ErrValidation = eris.New("record: validation failed")

// Result is the output of Build.
type Result struct {
	Name    string         `json:"name"`
	Record  map[string]any `json:"record"`
	Summary string         `json:"summary"`
}

// Option configures a Builder.
type Option func(*Builder)

// WithLanguage sets the locale used for numbers in the summary.
func WithLanguage(tag language.Tag) Option {
	return func(b *Builder) {
		b.lang = tag
	}
}

// WithCatalog renders category labels instead of bare ids in the summary.
func WithCatalog(c *Catalog) Option {
	return func(b *Builder) {
		b.catalog = c
	}
}

// Builder produces CRM property records. It holds no per-call state and is
// safe for concurrent use.
type Builder struct {
	lang    language.Tag
	catalog *Catalog
}

// NewBuilder creates a Builder. Numbers are formatted in English by default.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{lang: language.English}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs the default builder.
func Build(agg *cadastre.Aggregate, primary, sub []string) (*Result, error) {
	return NewBuilder().Build(agg, primary, sub)
}

// Build maps agg and the category ids onto a CRM record. Absent, blank and
// non-finite values are left out instead of being sent as nulls or zeros;
// empty category lists omit the category fields. The only error is an
// aggregate without a point.
func (b *Builder) Build(agg *cadastre.Aggregate, primary, sub []string) (*Result, error) {
	if !agg.Resolved() {
		return nil, eris.Wrap(ErrValidation, "record: aggregate has no resolved point")
	}

	name := DisplayName(agg)
	rec := map[string]any{FieldName: name}
	if id := strings.TrimSpace(agg.PointID); id != "" {
		rec[FieldPointID] = id
	}

	for _, f := range fields {
		if f.crm == "" {
			continue
		}
		if v, ok := f.resolve(sectionAttrs(agg, f.section)); ok {
			rec[f.crm] = v
		}
	}

	primary, sub = cleanIDs(primary), cleanIDs(sub)
	if len(primary) > 0 {
		rec[FieldPrimary] = JoinCategories(primary)
	}
	if len(sub) > 0 {
		rec[FieldSub] = JoinCategories(sub)
	}

	return &Result{
		Name:    name,
		Record:  rec,
		Summary: b.summary(agg, name, primary, sub),
	}, nil
}

// DisplayName derives the property name: best street name plus house
// number, else the municipality, else UnknownLocation.
func DisplayName(agg *cadastre.Aggregate) string {
	if !agg.Resolved() {
		return UnknownLocation
	}
	if street, ok := agg.Point.FirstString(streetKeys...); ok {
		if number, ok := agg.Point.FirstString(houseNumberKeys...); ok {
			return street + " " + number
		}
		return street
	}
	if city, ok := agg.Point.FirstString(cityKeys...); ok {
		return city
	}
	return UnknownLocation
}

// JoinCategories serializes ids in the CRM multi-value form ";a;b;".
func JoinCategories(ids []string) string {
	return ";" + strings.Join(ids, ";") + ";"
}

// Validate checks what Build does not: a resolved point with numeric
// coordinates and at least one primary and one sub-category. All problems
// are reported together.
func Validate(agg *cadastre.Aggregate, primary, sub []string) error {
	var problems []string
	if !agg.Resolved() {
		problems = append(problems, "no resolved point")
	} else if _, ok := agg.Coordinates(); !ok {
		problems = append(problems, "point has no numeric coordinates")
	}
	if len(cleanIDs(primary)) == 0 {
		problems = append(problems, "no category chosen")
	}
	if len(cleanIDs(sub)) == 0 {
		problems = append(problems, "no sub-category chosen")
	}
	if len(problems) > 0 {
		return eris.Wrap(ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (b *Builder) printer() *message.Printer {
	return message.NewPrinter(b.lang)
}

func cleanIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

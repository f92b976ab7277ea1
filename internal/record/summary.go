package record

import (
	"strconv"
	"strings"

	"github.com/sells-group/property-map/internal/cadastre"
)

// summary renders every resolved field of the aggregate, section by section,
// followed by the chosen categories and any lookup warnings.
func (b *Builder) summary(agg *cadastre.Aggregate, name string, primary, sub []string) string {
	p := b.printer()
	var sb strings.Builder

	sb.WriteString(name)
	sb.WriteString("\n")
	if agg.PointID != "" {
		line(&sb, "Point id", agg.PointID)
	}

	for _, s := range sectionOrder {
		attrs := sectionAttrs(agg, s)
		var rows []string
		for _, f := range fields {
			if f.section != s {
				continue
			}
			if v, ok := f.resolve(attrs); ok {
				rows = append(rows, f.label+": "+f.format(p, v))
			}
		}
		if len(rows) == 0 {
			continue
		}

		sb.WriteString("\n")
		sb.WriteString(sectionTitle(agg, s))
		sb.WriteString("\n")
		for _, r := range rows {
			sb.WriteString("  ")
			sb.WriteString(r)
			sb.WriteString("\n")
		}
	}

	if len(primary) > 0 || len(sub) > 0 {
		sb.WriteString("\nCategories\n")
		if len(primary) > 0 {
			line(&sb, "Primary", b.labels(primary))
		}
		if len(sub) > 0 {
			line(&sb, "Sub", b.labels(sub))
		}
	}

	if len(agg.Errors) > 0 {
		sb.WriteString("\nWarnings\n")
		for _, e := range agg.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sectionTitle(agg *cadastre.Aggregate, s Section) string {
	switch {
	case s == SectionBuilding && len(agg.Buildings) > 1:
		return string(s) + " (1 of " + strconv.Itoa(len(agg.Buildings)) + ")"
	case s == SectionSubmarket && agg.SubmarketBuffered:
		return string(s) + " (nearby)"
	default:
		return string(s)
	}
}

func (b *Builder) labels(ids []string) string {
	if b.catalog == nil {
		return strings.Join(ids, ", ")
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = b.catalog.Label(id)
	}
	return strings.Join(out, ", ")
}

func line(sb *strings.Builder, label, value string) {
	sb.WriteString("  ")
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// AreaMagicNumber is added to an OSM relation id to obtain its Overpass area id.
const AreaMagicNumber = 3600000000

// DefaultSettings are prepended to every query unless the caller overrides them.
var DefaultSettings = []string{"[out:json]"}

// Always is a condition that the tag must be present: [prop].
func Always(prop string) string {
	return "[" + prop + "]"
}

// Condition renders ["prop" op "value"] for any Overpass comparison operator.
func Condition(op, prop string, value any) string {
	return fmt.Sprintf(`["%s" %s "%s"]`, prop, op, escape(fmt.Sprint(value)))
}

// Equals renders ["prop" = "value"].
func Equals(prop string, value any) string { return Condition("=", prop, value) }

// NotEqual renders ["prop" != "value"].
func NotEqual(prop string, value any) string { return Condition("!=", prop, value) }

// TagCondition renders t["prop"] op "value", for use inside If.
func TagCondition(op, prop string, value any) string {
	return fmt.Sprintf(`t["%s"] %s "%s"`, prop, op, escape(fmt.Sprint(value)))
}

// IDEquals restricts a statement to a single element id: (id).
func IDEquals(id int64) string {
	return "(" + strconv.FormatInt(id, 10) + ")"
}

// If wraps an evaluator expression: (if: expr).
func If(expr string) string { return "(if: " + expr + ")" }

// And joins evaluator expressions with &&.
func And(exprs ...string) string { return strings.Join(exprs, " && ") }

// Or joins evaluator expressions with ||.
func Or(exprs ...string) string { return strings.Join(exprs, " || ") }

// HighwayWayFilters selects roads and paths, leaving out sidewalks,
// crossings, driveways, parking aisles and private service roads.
var HighwayWayFilters = strings.Join([]string{
	Always("highway"),
	NotEqual("highway", "driveway"),
	NotEqual("footway", "crossing"),
	NotEqual("footway", "sidewalk"),
	NotEqual("service", "parking_aisle"),
	NotEqual("service", "driveway"),
	NotEqual("service", "drive-through"),
	If(Or(
		TagCondition("!=", "highway", "service"),
		TagCondition("!=", "access", "private"),
	)),
}, "")

// HighwayNodeFilters drops traffic signal nodes.
var HighwayNodeFilters = NotEqual("traffic_signals", "signal")

// Conditions are the filters and bounds shared by every requested type.
type Conditions struct {
	Filters []string
	Bounds  domain.BoundingBox
}

// BoundsAsString renders the global bbox setting. Overpass expects
// south,west,north,east which is the BoundingBox order.
func BoundsAsString(b domain.BoundingBox) string {
	return fmt.Sprintf("[bbox:%s,%s,%s,%s]", ftoa(b.MinLat()), ftoa(b.MinLon()), ftoa(b.MaxLat()), ftoa(b.MaxLon()))
}

// FiltersForType renders one union member, e.g. way["highway"];.
func FiltersForType(filters []string, kind string) string {
	return kind + strings.Join(filters, "") + ";"
}

// BuildFilterQuery renders a query returning every element of the given
// kinds that matches all filters inside the bounds, with way nodes recursed
// so that way geometry can be reconstructed.
func BuildFilterQuery(settings []string, conds Conditions, kinds []string) string {
	if len(settings) == 0 {
		settings = DefaultSettings
	}
	var b strings.Builder
	b.WriteString(strings.Join(settings, ""))
	b.WriteString(BoundsAsString(conds.Bounds))
	b.WriteString(";\n(\n")
	for _, kind := range kinds {
		b.WriteString(FiltersForType(conds.Filters, kind))
		b.WriteString("\n")
	}
	b.WriteString(");\nout meta;\n>;\nout meta qt;\n")
	return b.String()
}

// AreaID converts an OSM relation id to its Overpass area id.
func AreaID(osmID string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(osmID), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid osm id %q: %w", osmID, err)
	}
	return strconv.FormatInt(id+AreaMagicNumber, 10), nil
}

// BlockLocation is what a block query needs: the area to search and the
// street names at each of the two intersections.
type BlockLocation struct {
	AreaID        string
	Intersections [2][]string
}

// CommonStreet returns the street named at both intersections.
func CommonStreet(intersections [2][]string) (string, error) {
	counts := streetCounts(intersections)
	for _, street := range intersections[0] {
		if counts[street] == 2 {
			return street, nil
		}
	}
	return "", fmt.Errorf("no common block in intersections %q", intersections)
}

func streetCounts(intersections [2][]string) map[string]int {
	counts := make(map[string]int)
	for _, intersection := range intersections {
		for _, street := range intersection {
			counts[street]++
		}
	}
	return counts
}

// BuildBlockQuery renders the query that finds the ways of the street common
// to both intersections that touch either intersection node, plus the two
// nodes themselves. kind selects which set is printed: "way" or "node".
// Overpass mangles the output when both are printed together, so callers
// issue one query per kind.
func BuildBlockQuery(kind string, loc BlockLocation) (string, error) {
	var output string
	switch kind {
	case domain.KindWay:
		output = ".ways"
	case domain.KindNode:
		output = ".allnodes"
	default:
		return "", fmt.Errorf("block query kind must be %q or %q, got %q", domain.KindWay, domain.KindNode, kind)
	}
	if loc.AreaID == "" {
		return "", fmt.Errorf("block query needs an area id")
	}

	common, err := CommonStreet(loc.Intersections)
	if err != nil {
		return "", err
	}
	counts := streetCounts(loc.Intersections)

	// The common street first, then the cross street of each intersection.
	blocks := []string{common}
	for _, intersection := range loc.Intersections {
		sorted := append([]string(nil), intersection...)
		sort.SliceStable(sorted, func(i, j int) bool { return counts[sorted[i]] > counts[sorted[j]] })
		blocks = append(blocks, sorted[len(sorted)-1])
	}

	var b strings.Builder
	b.WriteString(strings.Join(DefaultSettings, ""))
	b.WriteString(";\n")
	for i, street := range blocks {
		fmt.Fprintf(&b, "way(area:%s)%s%s%s->.w%d;\n",
			loc.AreaID, Always("highway"), nameEquals(street), NotEqual("footway", "crossing"), i+1)
	}
	b.WriteString("(node(w.w1)(w.w2);\n node(w.w1)(w.w3);\n)->.allnodes;\n")
	b.WriteString("way.w1[highway](bn.allnodes)->.ways;\n")
	fmt.Fprintf(&b, "(%s;)->.outputSet;\n.outputSet out geom;\n", output)
	return b.String(), nil
}

func nameEquals(street string) string {
	return `[name="` + escape(street) + `"]`
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package diff

import (
	"strconv"

	"github.com/nextmonthlab/progress-versioning/internal/domain"
)

// Classify determines what kind of change next represents relative to prev.
// A nil prev is always a create. Otherwise the most specific matching
// category wins: section reordering is a layout change, metadata edits are
// seo changes, style-only edits are style changes, anything else is a
// general update. Restore is never inferred from content; the versioning
// service sets it explicitly on an explicit restore operation, since a
// restored snapshot can be byte-identical to one typed by hand.
func Classify(prev, next domain.Snapshot) domain.ChangeType {
	if prev == nil {
		return domain.ChangeCreate
	}

	if !equalValues(sectionIDs(prev), sectionIDs(next)) {
		return domain.ChangeLayout
	}

	if !equalValues(prev["metadata"], next["metadata"]) {
		return domain.ChangeSEO
	}

	if !equalValues(extractStyles(prev), extractStyles(next)) {
		return domain.ChangeStyle
	}

	return domain.ChangeUpdate
}

// sectionIDs returns the ordered list of section ids from a snapshot
func sectionIDs(snapshot domain.Snapshot) []interface{} {
	sections, ok := snapshot["sections"].([]interface{})
	if !ok {
		return nil
	}
	ids := make([]interface{}, len(sections))
	for i, s := range sections {
		if section, ok := asMap(s); ok {
			ids[i] = section["id"]
		}
	}
	return ids
}

var sectionStyleKeys = []string{"backgroundColor", "textColor", "padding", "margin", "borderRadius"}
var componentStyleKeys = []string{"backgroundColor", "textColor", "fontSize", "fontWeight"}

// extractStyles pulls the style properties out of a snapshot's sections and
// their components, keyed by position, so style-only edits can be detected
// independently of content edits
func extractStyles(snapshot domain.Snapshot) map[string]interface{} {
	styles := map[string]interface{}{}

	sections, ok := snapshot["sections"].([]interface{})
	if !ok {
		return styles
	}

	for i, s := range sections {
		section, ok := asMap(s)
		if !ok {
			continue
		}
		styles["section_"+strconv.Itoa(i)] = pick(section, sectionStyleKeys)

		components, ok := section["components"].([]interface{})
		if !ok {
			continue
		}
		for j, c := range components {
			component, ok := asMap(c)
			if !ok {
				continue
			}
			styles["section_"+strconv.Itoa(i)+"_component_"+strconv.Itoa(j)] = pick(component, componentStyleKeys)
		}
	}

	return styles
}

func pick(m map[string]interface{}, keys []string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

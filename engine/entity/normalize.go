package entity

import "strings"

// The platform nests every attribute value inside a list of envelope objects
// carrying uri, ov flags and source metadata. Normalization extracts the
// bare values so tool callers see a stable, compact shape regardless of
// which source system produced the record.

// SimplifyAttributes extracts the "value" field from each attribute
// envelope, recursing into nested attribute groups. Single-element lists
// collapse to the bare value.
func SimplifyAttributes(attributes map[string]any) map[string]any {
	result := make(map[string]any)
	for key, raw := range attributes {
		list, ok := raw.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		var simplified []any
		for _, item := range list {
			envelope, ok := item.(map[string]any)
			if !ok {
				continue
			}
			value, ok := envelope["value"]
			if !ok {
				continue
			}
			if nested, ok := value.(map[string]any); ok {
				simplified = append(simplified, SimplifyAttributes(nested))
			} else {
				simplified = append(simplified, value)
			}
		}
		switch len(simplified) {
		case 0:
		case 1:
			result[key] = simplified[0]
		default:
			result[key] = simplified
		}
	}
	return result
}

// Crosswalk is the slimmed identity record of a source-system link.
type Crosswalk struct {
	ID         any    `json:"id"         yaml:"id"`
	Type       string `json:"type"       yaml:"type"`
	Value      any    `json:"value"      yaml:"value"`
	CreateDate any    `json:"createDate" yaml:"createDate"`
}

// SlimCrosswalks reduces raw crosswalk records to id, type, value and
// createDate. The id falls back from the URI tail to an explicit id field;
// createDate tolerates the three date field spellings seen across sources.
func SlimCrosswalks(raw []any) []Crosswalk {
	out := make([]Crosswalk, 0, len(raw))
	for _, item := range raw {
		cw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var id any
		if uri, _ := cw["uri"].(string); uri != "" && strings.Contains(uri, "/") {
			id = uri[strings.LastIndex(uri, "/")+1:]
		} else {
			id = cw["id"]
		}
		typ, _ := cw["type"].(string)
		if idx := strings.LastIndex(typ, "/"); idx >= 0 {
			typ = typ[idx+1:]
		}
		createDate := cw["createDate"]
		if createDate == nil {
			createDate = cw["createTime"]
		}
		if createDate == nil {
			createDate = cw["createdTime"]
		}
		out = append(out, Crosswalk{
			ID:         id,
			Type:       typ,
			Value:      cw["value"],
			CreateDate: createDate,
		})
	}
	return out
}

// AttributeSelector names the attributes an operation should return.
// Selecting everything is an explicit state rather than an overloaded empty
// list, so callers cannot confuse "no attributes" with "all attributes".
type AttributeSelector struct {
	names []string
	all   bool
}

// SelectAll keeps every attribute.
func SelectAll() AttributeSelector {
	return AttributeSelector{all: true}
}

// SelectNames keeps only the named attributes. An empty name list selects
// everything, matching the caller-facing convention that omitting the
// parameter means no filtering.
func SelectNames(names []string) AttributeSelector {
	if len(names) == 0 {
		return SelectAll()
	}
	return AttributeSelector{names: names}
}

func (s AttributeSelector) All() bool {
	return s.all
}

// Apply filters a raw attributes map to the selected names. The identity
// fields of the enclosing record are never the selector's concern; it only
// ever narrows the attributes map itself.
func (s AttributeSelector) Apply(attributes map[string]any) map[string]any {
	if s.all {
		return attributes
	}
	filtered := make(map[string]any, len(s.names))
	for _, name := range s.names {
		if value, ok := attributes[name]; ok {
			filtered[name] = value
		}
	}
	return filtered
}

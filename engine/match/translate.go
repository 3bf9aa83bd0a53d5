package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mdmgate/mdmgate/engine/core"
)

// SearchType selects how a match filter value is interpreted.
type SearchType string

const (
	ByMatchRule  SearchType = "match_rule"
	ByScore      SearchType = "score"
	ByConfidence SearchType = "confidence"
)

// ConfidenceLabels is the closed set of action labels the platform assigns
// to potential matches.
var ConfidenceLabels = []string{
	"Low confidence",
	"Medium confidence",
	"High confidence",
	"Strong matches",
	"Super strong matches",
}

// Translate converts a caller-facing match filter into the platform's
// filter expression language and combines it with the entity-type
// restriction and any extra raw search filters. It performs no I/O.
func Translate(searchType SearchType, filter, entityType, extraFilters string) (string, error) {
	if strings.TrimSpace(entityType) == "" {
		return "", core.InvalidFilter("entity_type cannot be empty")
	}

	var primary string
	switch searchType {
	case ByMatchRule:
		rule, err := translateMatchRule(filter, entityType)
		if err != nil {
			return "", err
		}
		primary = rule
	case ByScore:
		expr, err := translateScore(filter)
		if err != nil {
			return "", err
		}
		primary = expr
	case ByConfidence:
		expr, err := translateConfidence(filter)
		if err != nil {
			return "", err
		}
		primary = expr
	default:
		return "", core.InvalidFilter(fmt.Sprintf(
			"search_type must be one of: %s, %s, %s", ByMatchRule, ByScore, ByConfidence))
	}

	parts := []string{primary, fmt.Sprintf("equals(type,'configuration/entityTypes/%s')", entityType)}
	if extra := strings.TrimSpace(extraFilters); extra != "" {
		parts = append(parts, extra)
	}
	return "(" + strings.Join(parts, " and ") + ")", nil
}

// translateMatchRule accepts either a bare rule id or a full match-group
// URI; the tail of the path is the rule id either way.
func translateMatchRule(filter, entityType string) (string, error) {
	rule := strings.TrimSpace(filter)
	if idx := strings.LastIndex(rule, "/"); idx >= 0 {
		rule = rule[idx+1:]
	}
	if rule == "" {
		return "", core.InvalidFilter("match_rule filter requires a rule id, e.g. 'BaseRule05'")
	}
	return fmt.Sprintf("equals(matchRules,'configuration/entityTypes/%s/matchGroups/%s')",
		entityType, rule), nil
}

// translateScore parses a "start,end" percentage pair and maps it onto the
// platform's 0..1 relevance range.
func translateScore(filter string) (string, error) {
	parts := strings.Split(filter, ",")
	if len(parts) != 2 {
		return "", core.InvalidFilter("score filter must be in format 'start,end', e.g. '50,100'")
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", core.InvalidFilter("score filter must contain numeric values, e.g. '50,100'")
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", core.InvalidFilter("score filter must contain numeric values, e.g. '50,100'")
	}
	if start < 0 || start > 100 || end < 0 || end > 100 {
		return "", core.InvalidFilter("score values must be between 0 and 100")
	}
	if start > end {
		return "", core.InvalidFilter("start score must be less than or equal to end score")
	}
	return fmt.Sprintf("range(relevanceScores.relevance,%s,%s)",
		formatScore(start), formatScore(end)), nil
}

// formatScore renders a percentage as the platform's fractional relevance,
// e.g. 50 -> "0.5", 100 -> "1".
func formatScore(pct int) string {
	return strconv.FormatFloat(float64(pct)/100, 'g', -1, 64)
}

func translateConfidence(filter string) (string, error) {
	label := strings.TrimSpace(filter)
	for _, known := range ConfidenceLabels {
		if label == known {
			return fmt.Sprintf("equals(relevanceScores.actionLabel,'%s')", label), nil
		}
	}
	return "", core.InvalidFilter(fmt.Sprintf(
		"confidence filter must be one of: %s", strings.Join(ConfidenceLabels, ", ")))
}

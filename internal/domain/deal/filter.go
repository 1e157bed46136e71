package deal

import (
	"fmt"
	"strings"
	"time"
)

// Filter is a boolean formula over deal fields.
type Filter interface {
	isFilter()
}

// Eq matches when Field equals Value.
type Eq struct {
	Field Field
	Value any
}

// In matches when Field equals any of Values.
type In struct {
	Field  Field
	Values []any
}

// Blank matches an empty or unset field.
type Blank struct {
	Field Field
}

// NotBlank matches a set field.
type NotBlank struct {
	Field Field
}

// OlderThan matches when now minus the time in Field is at least Age.
type OlderThan struct {
	Field Field
	Age   time.Duration
}

type And []Filter

type Or []Filter

func (Eq) isFilter()        {}
func (In) isFilter()        {}
func (Blank) isFilter()     {}
func (NotBlank) isFilter()  {}
func (OlderThan) isFilter() {}
func (And) isFilter()       {}
func (Or) isFilter()        {}

// Query selects deals matching Where. Limit <= 0 means unbounded.
type Query struct {
	Where Filter
	Limit int
}

// ExpiryCandidates selects listed deals with no claim channel whose age reached threshold.
func ExpiryCandidates(threshold time.Duration, limit int) Query {
	statuses := make([]any, 0, len(UnclaimedStatuses))
	for _, s := range UnclaimedStatuses {
		statuses = append(statuses, s)
	}
	return Query{
		Where: And{
			In{Field: FieldStatus, Values: statuses},
			Blank{Field: FieldClaimChannelID},
			OlderThan{Field: FieldCreatedAt, Age: threshold},
		},
		Limit: limit,
	}
}

// Expression renders f as an evaluable formula in which literal values are
// bound as parameters p0, p1, ... The returned params must be merged with the
// record's FieldValues before evaluation.
func Expression(f Filter) (string, map[string]any) {
	params := map[string]any{}
	expr := render(f, params)
	return expr, params
}

func render(f Filter, params map[string]any) string {
	switch v := f.(type) {
	case nil:
		return "true"
	case Eq:
		return fmt.Sprintf("%s == %s", v.Field, bind(params, v.Value))
	case In:
		if len(v.Values) == 0 {
			return "false"
		}
		names := make([]string, 0, len(v.Values))
		for _, val := range v.Values {
			names = append(names, bind(params, val))
		}
		return fmt.Sprintf("%s IN (%s)", v.Field, strings.Join(names, ", "))
	case Blank:
		return fmt.Sprintf("%s == ''", v.Field)
	case NotBlank:
		return fmt.Sprintf("%s != ''", v.Field)
	case OlderThan:
		return fmt.Sprintf("(%s_age_seconds >= 0 && %s_age_seconds >= %s)", v.Field, v.Field, bind(params, v.Age.Seconds()))
	case And:
		return join(v, " && ", "true", params)
	case Or:
		return join(v, " || ", "false", params)
	default:
		panic(fmt.Sprintf("deal: unsupported filter %T", f))
	}
}

func join(fs []Filter, op, empty string, params map[string]any) string {
	if len(fs) == 0 {
		return empty
	}
	parts := make([]string, 0, len(fs))
	for _, sub := range fs {
		parts = append(parts, render(sub, params))
	}
	return "(" + strings.Join(parts, op) + ")"
}

func bind(params map[string]any, v any) string {
	name := fmt.Sprintf("p%d", len(params))
	params[name] = NormalizeValue(v)
	return name
}

// NormalizeValue converts typed domain values to their stored scalar form.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case Status:
		return string(t)
	case PricingMode:
		return string(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

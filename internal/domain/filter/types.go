package filter

import (
	"fmt"

	"outofschool/internal/core/apperror"
)

// ComparisonType enumerates operators of ad-hoc filter rows.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	Greater        ComparisonType = "gt"
	LessOrEqual    ComparisonType = "lte"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	NotInList      ComparisonType = "nin"
	Contains       ComparisonType = "contains"  // ILIKE %val%
	NotContains    ComparisonType = "ncontains" // NOT ILIKE %val%
	IsNullOp       ComparisonType = "null"
	IsNotNullOp    ComparisonType = "not_null"
)

// Item is one ad-hoc filter row, typically decoded from a request.
type Item struct {
	Field    string         `json:"field"`    // column name (snake_case)
	Operator ComparisonType `json:"operator"` // comparison
	Value    any            `json:"value"`    // scalar or list
}

// FromItems compiles filter rows into one conjunctive predicate. Columns are
// checked against allowed to keep arbitrary identifiers out of SQL.
func FromItems[E any](items []Item, allowed func(column string) bool) (Predicate[E], error) {
	var out Predicate[E]
	for _, item := range items {
		if !allowed(item.Field) {
			return nil, apperror.NewValidation("invalid filter column").WithDetail("field", item.Field)
		}

		var p Predicate[E]
		switch item.Operator {
		case Equal, InList:
			p = Eq[E](item.Field, item.Value)
		case NotEqual, NotInList:
			p = NotEq[E](item.Field, item.Value)
		case Less:
			p = Lt[E](item.Field, item.Value)
		case Greater:
			p = Gt[E](item.Field, item.Value)
		case LessOrEqual:
			p = LtOrEq[E](item.Field, item.Value)
		case GreaterOrEqual:
			p = GtOrEq[E](item.Field, item.Value)
		case Contains:
			p = ILike[E](item.Field, fmt.Sprintf("%%%v%%", item.Value))
		case NotContains:
			p = NotILike[E](item.Field, fmt.Sprintf("%%%v%%", item.Value))
		case IsNullOp:
			p = IsNull[E](item.Field)
		case IsNotNullOp:
			p = IsNotNull[E](item.Field)
		default:
			return nil, apperror.NewValidation("invalid filter operator").WithDetail("operator", item.Operator)
		}
		out = Rewrite(out, p)
	}
	return out, nil
}

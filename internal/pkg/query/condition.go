package query

import (
	"fmt"
	"strings"
)

// Condition is one WHERE fragment. SQL names its parameters starting at
// @p<paramIndex> and returns them alongside the fragment.
type Condition interface {
	SQL(paramIndex int) (string, map[string]interface{})
}

type compareCondition struct {
	field    string
	operator string
	value    interface{}
}

// Eq matches field = value.
func Eq(field string, value interface{}) Condition {
	return &compareCondition{field: field, operator: "=", value: value}
}

// Gt matches field > value. Keyset pagination resumes with it after the
// last row of a page.
func Gt(field string, value interface{}) Condition {
	return &compareCondition{field: field, operator: ">", value: value}
}

// Gte matches field >= value.
func Gte(field string, value interface{}) Condition {
	return &compareCondition{field: field, operator: ">=", value: value}
}

// Lt matches field < value.
func Lt(field string, value interface{}) Condition {
	return &compareCondition{field: field, operator: "<", value: value}
}

// Lte matches field <= value.
func Lte(field string, value interface{}) Condition {
	return &compareCondition{field: field, operator: "<=", value: value}
}

func (c *compareCondition) SQL(paramIndex int) (string, map[string]interface{}) {
	name := fmt.Sprintf("p%d", paramIndex)
	return fmt.Sprintf("%s %s @%s", c.field, c.operator, name), map[string]interface{}{name: c.value}
}

// Between matches lo <= field <= hi, the shape of a chain range scan.
func Between(field string, lo, hi interface{}) Condition {
	return And(Gte(field, lo), Lte(field, hi))
}

type junction struct {
	operator   string
	conditions []Condition
}

// Or creates a parenthesised disjunction.
// Example: Or(Eq("status", "pending"), Lt("claimed_at", t)) generates
// "(status = @p0 OR claimed_at < @p1)"
func Or(conditions ...Condition) Condition {
	return &junction{operator: " OR ", conditions: conditions}
}

// And groups conditions so they can sit inside an Or.
func And(conditions ...Condition) Condition {
	return &junction{operator: " AND ", conditions: conditions}
}

func (c *junction) SQL(paramIndex int) (string, map[string]interface{}) {
	parts := make([]string, 0, len(c.conditions))
	params := make(map[string]interface{})
	for _, cond := range c.conditions {
		fragment, condParams := cond.SQL(paramIndex + len(params))
		parts = append(parts, fragment)
		for k, v := range condParams {
			params[k] = v
		}
	}
	return "(" + strings.Join(parts, c.operator) + ")", params
}

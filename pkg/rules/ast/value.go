package ast

import (
	"fmt"
	"strconv"
)

// ValueType represents the type of a literal value in a stage definition.
// There is no automatic coercion between types.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeArray   ValueType = "array"
	ValueTypeNull    ValueType = "null"
)

// ValueNode represents a literal value in the AST (used in conditions and actions).
type ValueNode struct {
	Type     ValueType   // Type of the value
	Value    interface{} // string, float64, bool, []interface{} or nil
	Location Location    // Source location
}

// IsNull returns true if the value is the null literal.
func (v *ValueNode) IsNull() bool {
	return v == nil || v.Type == ValueTypeNull
}

// String returns a string representation of the value.
func (v *ValueNode) String() string {
	if v.IsNull() {
		return "null"
	}
	switch v.Type {
	case ValueTypeString:
		return strconv.Quote(v.Value.(string))
	case ValueTypeNumber:
		return strconv.FormatFloat(v.Value.(float64), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Value)
	}
}

// Strings returns the string elements of an array value.
// Non-string elements are skipped.
func (v *ValueNode) Strings() []string {
	if v == nil || v.Type != ValueTypeArray {
		return nil
	}
	items, _ := v.Value.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

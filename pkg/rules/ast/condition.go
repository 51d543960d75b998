package ast

// ConditionType represents the type of condition expression.
type ConditionType string

const (
	ConditionTypeSimple ConditionType = "simple" // field op value
	ConditionTypeAll    ConditionType = "all"    // AND of children
	ConditionTypeAny    ConditionType = "any"    // OR of children
	ConditionTypeNot    ConditionType = "not"    // NOT of a single child
)

// Operator represents a comparison, presence or membership operator.
type Operator string

const (
	OperatorIs           Operator = "is"
	OperatorEqual        Operator = "=="
	OperatorNotEqual     Operator = "!="
	OperatorLessThan     Operator = "<"
	OperatorGreaterThan  Operator = ">"
	OperatorLessEqual    Operator = "<="
	OperatorGreaterEqual Operator = ">="
	OperatorContains     Operator = "contains"
	OperatorIsSome       Operator = "is_some"
	OperatorIsNone       Operator = "is_none"
)

// IsPresence returns true for operators that test presence and take no value.
func (o Operator) IsPresence() bool {
	return o == OperatorIsSome || o == OperatorIsNone
}

// IsOrdering returns true for numeric ordering operators.
func (o Operator) IsOrdering() bool {
	switch o {
	case OperatorLessThan, OperatorGreaterThan, OperatorLessEqual, OperatorGreaterEqual:
		return true
	}
	return false
}

// ConditionNode represents a condition expression in the AST.
// Conditions are simple tests (field op value) or logical combinators
// (all/any/not) over child conditions.
type ConditionNode struct {
	Type     ConditionType    // Type of condition
	Field    string           // Field reference (for Simple conditions)
	Operator Operator         // Operator (for Simple conditions)
	Value    *ValueNode       // Comparison value (nil for presence operators)
	Children []*ConditionNode // Child conditions (for All/Any/Not)
	Location Location         // Source location
}

// IsSimple returns true if this is a simple condition.
func (c *ConditionNode) IsSimple() bool {
	return c.Type == ConditionTypeSimple
}

// IsLogical returns true if this is a logical operator (all/any/not).
func (c *ConditionNode) IsLogical() bool {
	return c.Type == ConditionTypeAll || c.Type == ConditionTypeAny || c.Type == ConditionTypeNot
}

// Fields returns every field referenced by the condition tree, in walk order.
func (c *ConditionNode) Fields() []string {
	if c == nil {
		return nil
	}
	if c.IsSimple() {
		return []string{c.Field}
	}
	var fields []string
	for _, child := range c.Children {
		fields = append(fields, child.Fields()...)
	}
	return fields
}

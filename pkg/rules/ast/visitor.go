package ast

// Visitor provides an interface for traversing the AST.
// Implement this interface to perform operations on AST nodes
// (validation, reference collection, analysis, etc.).
type Visitor interface {
	VisitStage(*Stage) error
	VisitRule(*Rule) error
	VisitCondition(*ConditionNode) error
	VisitAction(*Action) error
	VisitValue(*ValueNode) error
}

// Walk traverses the AST starting from the stage node and calls the visitor
// for each node. Classifier and dispatch actions are visited with the rule
// actions. It returns the first error encountered.
func Walk(stage *Stage, visitor Visitor) error {
	if err := visitor.VisitStage(stage); err != nil {
		return err
	}

	for _, cls := range stage.Classify {
		if err := walkActions(cls.Actions, visitor); err != nil {
			return err
		}
	}

	for _, rule := range stage.Rules {
		if err := visitor.VisitRule(rule); err != nil {
			return err
		}
		if rule.Conditions != nil {
			if err := walkCondition(rule.Conditions, visitor); err != nil {
				return err
			}
		}
		if err := walkActions(rule.Actions, visitor); err != nil {
			return err
		}
	}

	for _, d := range stage.Dispatch {
		if d.Conditions != nil {
			if err := walkCondition(d.Conditions, visitor); err != nil {
				return err
			}
		}
		if err := walkActions(d.Actions, visitor); err != nil {
			return err
		}
	}

	return nil
}

func walkActions(actions []*Action, visitor Visitor) error {
	for _, action := range actions {
		if err := visitor.VisitAction(action); err != nil {
			return err
		}
		for _, param := range action.Parameters {
			if err := visitor.VisitValue(param); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkCondition recursively walks a condition tree.
func walkCondition(cond *ConditionNode, visitor Visitor) error {
	if err := visitor.VisitCondition(cond); err != nil {
		return err
	}
	if cond.Value != nil {
		if err := visitor.VisitValue(cond.Value); err != nil {
			return err
		}
	}
	for _, child := range cond.Children {
		if err := walkCondition(child, visitor); err != nil {
			return err
		}
	}
	return nil
}

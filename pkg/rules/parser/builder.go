package parser

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/triage/pkg/rules/ast"
	ruleErrors "mercator-hq/triage/pkg/rules/errors"
)

// builder constructs AST nodes from intermediate YAML structures.
// It handles type conversion and preserves source locations.
type builder struct {
	sourcePath string
	maxDepth   int
	errors     *ruleErrors.ErrorList
}

// newBuilder creates a new AST builder for the given source file.
func newBuilder(sourcePath string, maxDepth int) *builder {
	return &builder{
		sourcePath: sourcePath,
		maxDepth:   maxDepth,
		errors:     ruleErrors.NewErrorList(),
	}
}

func (b *builder) loc(p position) ast.Location {
	line, col := p.line, p.column
	if line == 0 {
		line, col = 1, 1
	}
	return ast.Location{File: b.sourcePath, Line: line, Column: col}
}

func (b *builder) nodeLoc(node *yaml.Node) ast.Location {
	return b.loc(positionOf(node))
}

func (b *builder) structural(loc ast.Location, format string, args ...interface{}) {
	b.errors.AddError(ruleErrors.ErrorTypeStructural, fmt.Sprintf(format, args...), loc)
}

// buildStage transforms a yamlStage into an ast.Stage.
func (b *builder) buildStage(ys *yamlStage) (*ast.Stage, error) {
	stage := &ast.Stage{
		Name:        ys.Name,
		Version:     ys.Version,
		Description: ys.Description,
		Author:      ys.Author,
		Kind:        ast.StageKindOrdinary,
		Order:       ys.Order,
		Sources:     ys.Sources,
		Otherwise:   ys.Otherwise,
		SourceFile:  b.sourcePath,
		Location:    b.loc(ys.pos),
	}

	if stage.Name == "" {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			"Stage name is required", stage.Location,
			ruleErrors.SuggestMissingField("name", "pdf_analysis"))
	}

	switch ast.StageKind(ys.Kind) {
	case "", ast.StageKindOrdinary:
	case ast.StageKindFinalization:
		stage.Kind = ast.StageKindFinalization
	default:
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Unknown stage kind %q", ys.Kind), stage.Location,
			ruleErrors.SuggestName(ys.Kind, []string{string(ast.StageKindOrdinary), string(ast.StageKindFinalization)}))
	}

	stage.Bounds = ast.Bounds{
		MaxReadBytes: ys.Bounds.MaxReadBytes,
		MaxScanBytes: ys.Bounds.MaxScanBytes,
		MaxDepth:     ys.Bounds.MaxDepth,
		MaxMembers:   ys.Bounds.MaxMembers,
		FailMode:     ast.FailMode(ys.Bounds.FailMode),
		Location:     b.loc(ys.Bounds.pos),
	}
	if ys.Bounds.pos.line == 0 {
		stage.Bounds.Location = stage.Location
	}
	if stage.Bounds.FailMode == "" {
		stage.Bounds.FailMode = ast.FailSoft
	}

	for _, yp := range ys.Probes {
		stage.Probes = append(stage.Probes, &ast.ProbeBinding{
			Name:     yp.Name,
			Kind:     yp.Kind,
			Config:   yp.Config,
			Observe:  yp.Observe,
			After:    yp.After,
			Location: b.loc(yp.pos),
		})
		if yp.Name == "" || yp.Kind == "" {
			b.structural(b.loc(yp.pos), "Probe binding requires both 'name' and 'kind'")
		}
	}

	for _, ym := range ys.Magic {
		if sig := b.buildMagic(&ym); sig != nil {
			stage.Magic = append(stage.Magic, sig)
		}
	}

	for i := range ys.Classify {
		yc := &ys.Classify[i]
		loc := b.loc(yc.pos)
		if yc.Observed == "" {
			b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
				fmt.Sprintf("Classifier at index %d has no 'observed' reference", i), loc,
				ruleErrors.SuggestMissingField("observed", "magic_pdf"))
			continue
		}
		stage.Classify = append(stage.Classify, &ast.Classifier{
			Observed: yc.Observed,
			Actions:  b.buildActions(yc.Then),
			Location: loc,
		})
	}

	for i := range ys.Rules {
		if rule := b.buildRule(&ys.Rules[i], i); rule != nil {
			stage.Rules = append(stage.Rules, rule)
		}
	}

	for _, yo := range ys.Outcomes {
		stage.Outcomes = append(stage.Outcomes, &ast.OutcomeDecl{
			Name:        yo.Name,
			Description: yo.Description,
			Severity:    ast.Severity(yo.Severity),
			Location:    b.loc(yo.pos),
		})
	}

	for i := range ys.Dispatch {
		if rule := b.buildRule(&ys.Dispatch[i], i); rule != nil {
			stage.Dispatch = append(stage.Dispatch, &ast.DispatchRule{
				Name:       rule.Name,
				Conditions: rule.Conditions,
				Actions:    rule.Actions,
				Location:   rule.Location,
			})
		}
	}

	if b.errors.HasErrors() {
		return nil, b.errors
	}
	return stage, nil
}

// buildMagic decodes a hex signature such as "25 50 44 46".
func (b *builder) buildMagic(ym *yamlMagic) *ast.MagicSignature {
	loc := b.loc(ym.pos)
	if ym.Signal == "" {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			"Magic signature has no 'signal'", loc,
			ruleErrors.SuggestMissingField("signal", "magic_pdf"))
		return nil
	}

	raw := strings.Join(strings.Fields(ym.Bytes), "")
	sig, err := hex.DecodeString(raw)
	if err != nil || len(sig) == 0 {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Magic signature %q has invalid bytes %q", ym.Signal, ym.Bytes), loc,
			"Write bytes as hex pairs, e.g. \"25 50 44 46\"")
		return nil
	}
	if ym.Offset < 0 {
		b.structural(loc, "Magic signature %q has negative offset %d", ym.Signal, ym.Offset)
		return nil
	}

	return &ast.MagicSignature{
		Signal:   ym.Signal,
		Offset:   ym.Offset,
		Bytes:    sig,
		Location: loc,
	}
}

// buildRule transforms a yamlRule into an ast.Rule.
func (b *builder) buildRule(yr *yamlRule, index int) *ast.Rule {
	loc := b.loc(yr.pos)
	if yr.Name == "" {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			fmt.Sprintf("Rule at index %d has no name", index), loc,
			ruleErrors.SuggestMissingField("name", "pdf-active-content"))
		return nil
	}

	rule := &ast.Rule{
		Name:        yr.Name,
		Description: yr.Description,
		Enabled:     true,
		Location:    loc,
	}
	if yr.Enabled != nil {
		rule.Enabled = *yr.Enabled
	}

	if yr.When.Kind != 0 {
		rule.Conditions = b.buildCondition(&yr.When, 1)
	}
	rule.Actions = b.buildActions(yr.Then)
	if len(rule.Actions) == 0 && len(yr.Then) == 0 {
		b.structural(loc, "Rule %q has no actions", yr.Name)
	}
	return rule
}

// buildCondition transforms a condition node. Conditions can be:
// - a bare field reference (shorthand for "field is true")
// - a sequence of conditions (implicit all)
// - a logical operator (all, any, not)
// - a simple test (field, operator, value)
func (b *builder) buildCondition(node *yaml.Node, depth int) *ast.ConditionNode {
	loc := b.nodeLoc(node)
	if depth > b.maxDepth {
		b.structural(loc, "Condition nesting exceeds maximum depth %d", b.maxDepth)
		return nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return &ast.ConditionNode{
			Type:     ast.ConditionTypeSimple,
			Field:    node.Value,
			Operator: ast.OperatorIs,
			Value:    &ast.ValueNode{Type: ast.ValueTypeBoolean, Value: true, Location: loc},
			Location: loc,
		}

	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			b.structural(loc, "Empty condition list")
			return nil
		}
		if len(node.Content) == 1 {
			return b.buildCondition(node.Content[0], depth)
		}
		return b.buildLogical(ast.ConditionTypeAll, node.Content, loc, depth)

	case yaml.MappingNode:
		fields := mappingFields(node)
		if children, ok := fields["all"]; ok {
			return b.buildLogical(ast.ConditionTypeAll, sequenceOf(children), loc, depth)
		}
		if children, ok := fields["any"]; ok {
			return b.buildLogical(ast.ConditionTypeAny, sequenceOf(children), loc, depth)
		}
		if child, ok := fields["not"]; ok {
			children := sequenceOf(child)
			if len(children) != 1 {
				b.structural(loc, "'not' takes exactly one condition, got %d", len(children))
				return nil
			}
			return b.buildLogical(ast.ConditionTypeNot, children, loc, depth)
		}
		return b.buildSimple(fields, loc)

	default:
		b.structural(loc, "Invalid condition")
		return nil
	}
}

func (b *builder) buildLogical(condType ast.ConditionType, children []*yaml.Node, loc ast.Location, depth int) *ast.ConditionNode {
	if len(children) == 0 {
		b.structural(loc, "'%s' requires at least one condition", condType)
		return nil
	}
	node := &ast.ConditionNode{
		Type:     condType,
		Children: make([]*ast.ConditionNode, 0, len(children)),
		Location: loc,
	}
	for _, child := range children {
		built := b.buildCondition(child, depth+1)
		if built == nil {
			return nil
		}
		node.Children = append(node.Children, built)
	}
	return node
}

func (b *builder) buildSimple(fields map[string]*yaml.Node, loc ast.Location) *ast.ConditionNode {
	fieldNode, ok := fields["field"]
	if !ok || fieldNode.Kind != yaml.ScalarNode || fieldNode.Value == "" {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			"Condition is missing 'field'", loc,
			"Use {field: ..., operator: ..., value: ...} or all/any/not")
		return nil
	}

	op := ast.OperatorIs
	if opNode, ok := fields["operator"]; ok {
		op = ast.Operator(opNode.Value)
	}

	cond := &ast.ConditionNode{
		Type:     ast.ConditionTypeSimple,
		Field:    fieldNode.Value,
		Operator: op,
		Location: loc,
	}
	if valueNode, ok := fields["value"]; ok {
		cond.Value = b.buildValue(valueNode)
	} else if op == ast.OperatorIs {
		cond.Value = &ast.ValueNode{Type: ast.ValueTypeBoolean, Value: true, Location: loc}
	}
	return cond
}

// buildActions transforms the action list of a rule or classifier.
func (b *builder) buildActions(nodes []yaml.Node) []*ast.Action {
	actions := make([]*ast.Action, 0, len(nodes))
	for i := range nodes {
		if action := b.buildAction(&nodes[i]); action != nil {
			actions = append(actions, action)
		}
	}
	return actions
}

// buildAction transforms an action mapping into an ast.Action.
func (b *builder) buildAction(node *yaml.Node) *ast.Action {
	loc := b.nodeLoc(node)
	if node.Kind != yaml.MappingNode {
		b.structural(loc, "Action must be a mapping with a 'type' key")
		return nil
	}

	fields := mappingFields(node)
	typeNode, ok := fields["type"]
	if !ok || typeNode.Value == "" {
		b.errors.AddErrorWithSuggestion(ruleErrors.ErrorTypeStructural,
			"Action is missing 'type'", loc,
			ruleErrors.SuggestMissingField("type", "signal"))
		return nil
	}

	action := &ast.Action{
		Type:       ast.ActionType(typeNode.Value),
		Parameters: make(map[string]*ast.ValueNode, len(fields)-1),
		Location:   loc,
	}
	for key, valueNode := range fields {
		if key == "type" {
			continue
		}
		if value := b.buildValue(valueNode); value != nil {
			action.Parameters[key] = value
		}
	}
	return action
}

// buildValue transforms a scalar or sequence node into an ast.ValueNode.
func (b *builder) buildValue(node *yaml.Node) *ast.ValueNode {
	loc := b.nodeLoc(node)

	var value interface{}
	if err := node.Decode(&value); err != nil {
		b.structural(loc, "Invalid value: %v", err)
		return nil
	}

	switch v := value.(type) {
	case nil:
		return &ast.ValueNode{Type: ast.ValueTypeNull, Location: loc}
	case string:
		return &ast.ValueNode{Type: ast.ValueTypeString, Value: v, Location: loc}
	case int:
		return &ast.ValueNode{Type: ast.ValueTypeNumber, Value: float64(v), Location: loc}
	case int64:
		return &ast.ValueNode{Type: ast.ValueTypeNumber, Value: float64(v), Location: loc}
	case uint64:
		return &ast.ValueNode{Type: ast.ValueTypeNumber, Value: float64(v), Location: loc}
	case float64:
		return &ast.ValueNode{Type: ast.ValueTypeNumber, Value: v, Location: loc}
	case bool:
		return &ast.ValueNode{Type: ast.ValueTypeBoolean, Value: v, Location: loc}
	case []interface{}:
		return &ast.ValueNode{Type: ast.ValueTypeArray, Value: v, Location: loc}
	default:
		b.structural(loc, "Unsupported value type %T", value)
		return nil
	}
}

// mappingFields indexes the value nodes of a mapping by key.
func mappingFields(node *yaml.Node) map[string]*yaml.Node {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}
	return fields
}

// sequenceOf returns the items of a sequence node, or the node itself.
func sequenceOf(node *yaml.Node) []*yaml.Node {
	if node.Kind == yaml.SequenceNode {
		return node.Content
	}
	return []*yaml.Node{node}
}

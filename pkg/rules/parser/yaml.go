package parser

import (
	"gopkg.in/yaml.v3"
)

// position records where a YAML mapping started.
type position struct {
	line   int
	column int
}

func positionOf(node *yaml.Node) position {
	if node == nil {
		return position{}
	}
	return position{line: node.Line, column: node.Column}
}

// yamlStage represents the intermediate structure of a stage file.
// It matches the YAML structure before transformation to AST.
type yamlStage struct {
	Name        string           `yaml:"name"`
	Version     string           `yaml:"version"`
	Description string           `yaml:"description"`
	Author      string           `yaml:"author"`
	Kind        string           `yaml:"kind"`
	Order       int              `yaml:"order"`
	Bounds      yamlBounds       `yaml:"bounds"`
	Sources     []string         `yaml:"sources"`
	Probes      []yamlProbe      `yaml:"probes"`
	Magic       []yamlMagic      `yaml:"magic"`
	Classify    []yamlClassifier `yaml:"classify"`
	Rules       []yamlRule       `yaml:"rules"`
	Outcomes    []yamlOutcome    `yaml:"outcomes"`
	Otherwise   string           `yaml:"otherwise"`
	Dispatch    []yamlRule       `yaml:"dispatch"`

	pos position
}

type yamlBounds struct {
	MaxReadBytes int64  `yaml:"max_read_bytes"`
	MaxScanBytes int64  `yaml:"max_scan_bytes"`
	MaxDepth     int64  `yaml:"max_depth"`
	MaxMembers   int64  `yaml:"max_members"`
	FailMode     string `yaml:"fail_mode"`

	pos position
}

type yamlProbe struct {
	Name    string                 `yaml:"name"`
	Kind    string                 `yaml:"kind"`
	Config  map[string]interface{} `yaml:"config"`
	Observe bool                   `yaml:"observe"`
	After   []string               `yaml:"after"`

	pos position
}

type yamlMagic struct {
	Signal string `yaml:"signal"`
	Offset int64  `yaml:"offset"`
	Bytes  string `yaml:"bytes"`

	pos position
}

type yamlClassifier struct {
	Observed string      `yaml:"observed"`
	Then     []yaml.Node `yaml:"then"`

	pos position
}

// yamlRule is shared by condition rules and dispatch rules.
type yamlRule struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Enabled     *bool       `yaml:"enabled"` // Pointer to distinguish unset vs false
	When        yaml.Node   `yaml:"when"`
	Then        []yaml.Node `yaml:"then"`

	pos position
}

type yamlOutcome struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`

	pos position
}

func (s *yamlStage) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlStage
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.pos = positionOf(node)
	return nil
}

func (b *yamlBounds) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlBounds
	if err := node.Decode((*plain)(b)); err != nil {
		return err
	}
	b.pos = positionOf(node)
	return nil
}

func (p *yamlProbe) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlProbe
	if err := node.Decode((*plain)(p)); err != nil {
		return err
	}
	p.pos = positionOf(node)
	return nil
}

func (m *yamlMagic) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlMagic
	if err := node.Decode((*plain)(m)); err != nil {
		return err
	}
	m.pos = positionOf(node)
	return nil
}

func (c *yamlClassifier) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlClassifier
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.pos = positionOf(node)
	return nil
}

func (r *yamlRule) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlRule
	if err := node.Decode((*plain)(r)); err != nil {
		return err
	}
	r.pos = positionOf(node)
	return nil
}

func (o *yamlOutcome) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlOutcome
	if err := node.Decode((*plain)(o)); err != nil {
		return err
	}
	o.pos = positionOf(node)
	return nil
}

// parseYAMLBytes parses YAML bytes into the intermediate structure.
func parseYAMLBytes(data []byte) (*yamlStage, error) {
	var stage yamlStage
	if err := yaml.Unmarshal(data, &stage); err != nil {
		return nil, err
	}
	return &stage, nil
}

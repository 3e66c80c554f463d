package models

// LinkingRule bounds the number of links from one segment to another.
type LinkingRule struct {
	MinLinks int `json:"min_links"`
	MaxLinks int `json:"max_links"`
}

// RuleKey is an ordered (source, target) segment pair.
type RuleKey struct {
	Source string
	Target string
}

// RuleMatrix maps every (source, target) pair of a segment set to its rule.
type RuleMatrix map[RuleKey]LinkingRule

// RuleWire is the nested shape the engine speaks:
// {source: {target: {min_links, max_links}}}.
type RuleWire map[string]map[string]LinkingRule

// ToWire converts a matrix to the engine's nested-map shape.
func (m RuleMatrix) ToWire() RuleWire {
	wire := make(RuleWire)
	for key, rule := range m {
		if _, ok := wire[key.Source]; !ok {
			wire[key.Source] = make(map[string]LinkingRule)
		}
		wire[key.Source][key.Target] = rule
	}
	return wire
}

// FromWire flattens the engine's nested-map shape into a matrix.
func (w RuleWire) ToMatrix() RuleMatrix {
	matrix := make(RuleMatrix)
	for source, targets := range w {
		for target, rule := range targets {
			matrix[RuleKey{Source: source, Target: target}] = rule
		}
	}
	return matrix
}

// RulesEnvelope wraps the rule mapping for GET/POST /rules.
type RulesEnvelope struct {
	Rules RuleWire `json:"rules"`
}

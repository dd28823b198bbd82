package compiler

import "strings"

// Operator is the rule comparison vocabulary.
type Operator string

const (
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpEquals         Operator = "equals"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpCrossesAbove   Operator = "crosses_above"
	OpCrossesBelow   Operator = "crosses_below"
)

// operator aliases accepted from the form (symbols and legacy long names).
var operatorAliases = map[Operator]Operator{
	">":                     OpGreaterThan,
	"<":                     OpLessThan,
	"==":                    OpEquals,
	">=":                    OpGreaterOrEqual,
	"<=":                    OpLessOrEqual,
	"greater_than_or_equal": OpGreaterOrEqual,
	"less_than_or_equal":    OpLessOrEqual,
}

func normalizeOperator(op Operator) Operator {
	if canon, ok := operatorAliases[op]; ok {
		return canon
	}
	return op
}

// relationalSymbols maps comparison operators to their Python form.
var relationalSymbols = map[Operator]string{
	OpGreaterThan:    ">",
	OpLessThan:       "<",
	OpEquals:         "==",
	OpGreaterOrEqual: ">=",
	OpLessOrEqual:    "<=",
}

// Rule is one entry or exit condition. Exactly one of Value and Compare
// must be set: a literal threshold or a second indicator/field reference.
type Rule struct {
	Subject  string   `json:"subject"`
	Operator Operator `json:"operator"`
	Value    *float64 `json:"value,omitempty"`
	Compare  string   `json:"compare,omitempty"`
}

// Logic joins the rules of one group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// RuleSet holds the entry and exit conditions of a strategy. The per-group
// logic selector collected by the form is honored here; it defaults to AND.
type RuleSet struct {
	Entry      []Rule `json:"entry"`
	Exit       []Rule `json:"exit,omitempty"`
	EntryLogic Logic  `json:"entryLogic,omitempty"`
	ExitLogic  Logic  `json:"exitLogic,omitempty"`
}

// Timeframes lists the supported bar intervals.
var Timeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"}

func ValidTimeframe(tf string) bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

func (l Logic) pythonOperator() string {
	if strings.EqualFold(string(l), string(LogicOr)) {
		return "or"
	}
	return "and"
}

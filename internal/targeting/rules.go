package targeting

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RuleOperator combines the children of a branch node.
type RuleOperator string

const (
	OpAnd RuleOperator = "AND"
	OpOr  RuleOperator = "OR"
)

// FactOperator compares a session fact against the configured value.
type FactOperator string

const (
	FactEquals      FactOperator = "EQUALS"
	FactNotEquals   FactOperator = "NOT_EQUALS"
	FactContains    FactOperator = "CONTAINS"
	FactInList      FactOperator = "IN_LIST"
	FactGreaterThan FactOperator = "GREATER_THAN"
	FactLessThan    FactOperator = "LESS_THAN"
)

// Session facts the rule tree can reference. Unknown fact names are a
// configuration error caught at validation time.
const (
	FactDeviceType  = "device_type"
	FactPageCount   = "page_count"
	FactReferrer    = "referrer"
	FactReturning   = "returning_visitor"
	FactCountryCode = "country_code"
)

// RuleNode is one node of the session-rule expression tree: either a branch
// (Operator + Children) or a leaf (Fact + Op + Value). The tree is stored as
// JSONB by the admin surface and validated here at load time; evaluation is a
// plain bottom-up interpreter, never dynamic code.
type RuleNode struct {
	// Branch fields.
	Operator RuleOperator `json:"operator,omitempty"`
	Children []*RuleNode  `json:"children,omitempty"`

	// Leaf fields.
	Fact  string          `json:"fact,omitempty"`
	Op    FactOperator    `json:"op,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// maxRuleDepth bounds the tree to keep validation and evaluation cheap and to
// reject pathological configurations.
const maxRuleDepth = 10

// ValidateRuleTree checks the shape of a session-rule tree. A nil tree is
// valid (no session rules configured). Malformed trees are a configuration
// error: the campaign carrying them is excluded, the storefront is not.
func ValidateRuleTree(root *RuleNode) error {
	if root == nil {
		return nil
	}
	return validateNode(root, 0)
}

func validateNode(n *RuleNode, depth int) error {
	if depth > maxRuleDepth {
		return fmt.Errorf("rule tree exceeds maximum depth %d", maxRuleDepth)
	}

	isBranch := n.Operator != "" || len(n.Children) > 0
	isLeaf := n.Fact != "" || n.Op != "" || len(n.Value) > 0

	switch {
	case isBranch && isLeaf:
		return fmt.Errorf("rule node mixes branch and leaf fields")
	case isBranch:
		if n.Operator != OpAnd && n.Operator != OpOr {
			return fmt.Errorf("unknown rule operator %q", n.Operator)
		}
		if len(n.Children) == 0 {
			return fmt.Errorf("%s node has no children", n.Operator)
		}
		for _, child := range n.Children {
			if child == nil {
				return fmt.Errorf("%s node has nil child", n.Operator)
			}
			if err := validateNode(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	case isLeaf:
		return validateLeaf(n)
	default:
		return fmt.Errorf("empty rule node")
	}
}

func validateLeaf(n *RuleNode) error {
	switch n.Fact {
	case FactDeviceType, FactPageCount, FactReferrer, FactReturning, FactCountryCode:
	default:
		return fmt.Errorf("unknown session fact %q", n.Fact)
	}

	switch n.Op {
	case FactEquals, FactNotEquals, FactContains:
		if _, err := decodeScalar(n.Value); err != nil {
			return fmt.Errorf("fact %s: %w", n.Fact, err)
		}
	case FactInList:
		var list []string
		if err := json.Unmarshal(n.Value, &list); err != nil {
			return fmt.Errorf("fact %s: IN_LIST value must be a string array: %w", n.Fact, err)
		}
		if len(list) == 0 {
			return fmt.Errorf("fact %s: IN_LIST value is empty", n.Fact)
		}
	case FactGreaterThan, FactLessThan:
		var num float64
		if err := json.Unmarshal(n.Value, &num); err != nil {
			return fmt.Errorf("fact %s: %s value must be a number: %w", n.Fact, n.Op, err)
		}
	default:
		return fmt.Errorf("unknown fact operator %q", n.Op)
	}

	return nil
}

// EvalRuleTree evaluates a validated tree against the visitor context.
// Callers must run ValidateRuleTree first; on a tree that would have failed
// validation the evaluator returns false rather than panicking.
func EvalRuleTree(root *RuleNode, ctx *VisitorContext) bool {
	if root == nil {
		return false
	}
	return evalNode(root, ctx)
}

func evalNode(n *RuleNode, ctx *VisitorContext) bool {
	if n.Operator != "" {
		switch n.Operator {
		case OpAnd:
			for _, child := range n.Children {
				if child == nil || !evalNode(child, ctx) {
					return false
				}
			}
			return len(n.Children) > 0
		case OpOr:
			for _, child := range n.Children {
				if child != nil && evalNode(child, ctx) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return evalLeaf(n, ctx)
}

func evalLeaf(n *RuleNode, ctx *VisitorContext) bool {
	fact, ok := factValue(n.Fact, ctx)
	if !ok {
		return false
	}

	switch n.Op {
	case FactEquals, FactNotEquals, FactContains:
		want, err := decodeScalar(n.Value)
		if err != nil {
			return false
		}
		switch n.Op {
		case FactEquals:
			return strings.EqualFold(fact, want)
		case FactNotEquals:
			return !strings.EqualFold(fact, want)
		default:
			return strings.Contains(strings.ToLower(fact), strings.ToLower(want))
		}
	case FactInList:
		var list []string
		if err := json.Unmarshal(n.Value, &list); err != nil {
			return false
		}
		for _, item := range list {
			if strings.EqualFold(fact, item) {
				return true
			}
		}
		return false
	case FactGreaterThan, FactLessThan:
		var threshold float64
		if err := json.Unmarshal(n.Value, &threshold); err != nil {
			return false
		}
		actual, err := strconv.ParseFloat(fact, 64)
		if err != nil {
			return false
		}
		if n.Op == FactGreaterThan {
			return actual > threshold
		}
		return actual < threshold
	default:
		return false
	}
}

// factValue resolves a fact name to its string representation for this
// visitor. Numeric facts are stringified so the comparison operators can
// parse them back; this keeps the leaf schema uniform.
func factValue(name string, ctx *VisitorContext) (string, bool) {
	switch name {
	case FactDeviceType:
		return ctx.DeviceType, true
	case FactPageCount:
		return strconv.Itoa(ctx.PageCount), true
	case FactReferrer:
		return ctx.Referrer, true
	case FactReturning:
		return strconv.FormatBool(ctx.Returning), true
	case FactCountryCode:
		return ctx.CountryCode, true
	default:
		return "", false
	}
}

// decodeScalar accepts a JSON string, number, or bool and returns its string
// form. The admin UI serializes scalar rule values loosely, so we normalize
// here instead of rejecting.
func decodeScalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing rule value")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("rule value must be a string, number, or bool")
}

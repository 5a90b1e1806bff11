// internal/types/rules.go
package types

/*
 * Domain types for edit rules.
 *
 * Provides Edit, Node (the declarative rule tree), Scope, and EditType used by
 * internal/rules for compilation and by internal/engine for orchestration.
 * These types are storage agnostic: the catalog decodes them from embedded
 * JSON or from the edits table, and the engine never sees the wire form.
 *
 * Key types:
 *   - Edit: one catalog entry (id, scope, type, prose, rule tree)
 *   - Node: tagged union of Condition, Call, If, And, Or
 *   - Field: one extra condition field, kept in declaration order
 *   - ArgRef: an explicit Call argument (property path or literal)
 */

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Scope selects which part of a document an edit applies to.
type Scope string

const (
	ScopeHeader   Scope = "ts"   // header-only (transmittal sheet)
	ScopeDetail   Scope = "lar"  // one evaluation per detail record
	ScopeDocument Scope = "hmda" // whole-document aggregate
)

// AllScopes lists scopes in the order a full run visits them.
var AllScopes = []Scope{ScopeHeader, ScopeDetail, ScopeDocument}

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeHeader, ScopeDetail, ScopeDocument:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope %q (expected ts, lar or hmda)", s)
	}
}

// EditType is the severity/category classification of an edit.
type EditType string

const (
	EditSyntactical EditType = "syntactical"
	EditValidity    EditType = "validity"
	EditQuality     EditType = "quality"
	EditMacro       EditType = "macro"
	EditSpecial     EditType = "special"
)

// AllEditTypes lists edit types in reporting order.
var AllEditTypes = []EditType{EditSyntactical, EditValidity, EditQuality, EditMacro, EditSpecial}

// ParseEditType validates an edit type name.
func ParseEditType(s string) (EditType, error) {
	switch EditType(strings.ToLower(s)) {
	case EditSyntactical, EditValidity, EditQuality, EditMacro, EditSpecial:
		return EditType(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown edit type %q", s)
	}
}

// Edit is a single named validation rule.
type Edit struct {
	ID          string   `json:"id"`
	Scope       Scope    `json:"scope"`
	Type        EditType `json:"type"`
	Description string   `json:"description"`
	Explanation string   `json:"explanation"`
	Rule        *Node    `json:"rule"`
}

// NodeKind tags the rule tree variants.
type NodeKind int

const (
	NodeInvalid NodeKind = iota
	NodeCondition
	NodeCall
	NodeIf
	NodeAnd
	NodeOr
)

func (k NodeKind) String() string {
	switch k {
	case NodeCondition:
		return "condition"
	case NodeCall:
		return "call"
	case NodeIf:
		return "if"
	case NodeAnd:
		return "and"
	case NodeOr:
		return "or"
	default:
		return "invalid"
	}
}

// Field is an extra condition field such as "value" or "start".
type Field struct {
	Name  string
	Value any
}

// ArgRef is an explicit Call argument: a property path or a literal value.
type ArgRef struct {
	Path      string
	Literal   any
	IsLiteral bool
}

// Node is one vertex of a declarative rule tree. Rule trees are immutable
// once decoded; compiled predicates are cached per *Node.
type Node struct {
	Kind     NodeKind
	Property string  // Condition subject, optional Call subject
	Name     string  // condition or function name
	Label    string  // error-context key for computed values
	Fields   []Field // Condition extra fields, declaration order
	Args     []ArgRef
	HasArgs  bool // Call "args" present (overrides single-argument convention)
	If       *Node
	Then     *Node
	Children []*Node // And/Or operands
}

// Condition builds a Condition leaf.
func Condition(property, name string, fields ...Field) *Node {
	return &Node{Kind: NodeCondition, Property: property, Name: name, Fields: fields}
}

// Call builds a Call leaf. With no args the single-argument convention applies.
func Call(name, property string, args ...ArgRef) *Node {
	return &Node{Kind: NodeCall, Name: name, Property: property, Args: args, HasArgs: len(args) > 0}
}

// If builds an implication node.
func If(cond, then *Node) *Node {
	return &Node{Kind: NodeIf, If: cond, Then: then}
}

// And builds a conjunction node.
func And(children ...*Node) *Node {
	return &Node{Kind: NodeAnd, Children: children}
}

// Or builds a disjunction node.
func Or(children ...*Node) *Node {
	return &Node{Kind: NodeOr, Children: children}
}

// F is shorthand for a condition Field.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// PathArg references a property path.
func PathArg(path string) ArgRef {
	return ArgRef{Path: path}
}

// LiteralArg passes a fixed value.
func LiteralArg(v any) ArgRef {
	return ArgRef{Literal: v, IsLiteral: true}
}

// WithLabel returns n after setting its error-context label.
func (n *Node) WithLabel(label string) *Node {
	n.Label = label
	return n
}

// reserved keys are structural; every other key of a condition is an extra field.
var reservedKeys = map[string]bool{
	"property": true, "condition": true, "call": true, "args": true,
	"label": true, "if": true, "then": true, "and": true, "or": true,
}

// UnmarshalJSON decodes a rule tree while preserving the declaration order of
// condition fields, which fixes argument descriptor order.
func (n *Node) UnmarshalJSON(data []byte) error {
	keys, raw, err := decodeOrderedObject(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}

	*n = Node{}

	if v, ok := raw["label"]; ok {
		if err := json.Unmarshal(v, &n.Label); err != nil {
			return fmt.Errorf("%w: label: %v", ErrMalformedRule, err)
		}
	}
	if v, ok := raw["property"]; ok {
		if err := json.Unmarshal(v, &n.Property); err != nil {
			return fmt.Errorf("%w: property: %v", ErrMalformedRule, err)
		}
	}

	switch {
	case raw["if"] != nil:
		n.Kind = NodeIf
		if raw["then"] == nil {
			return fmt.Errorf("%w: if without then", ErrMalformedRule)
		}
		n.If, n.Then = new(Node), new(Node)
		if err := json.Unmarshal(raw["if"], n.If); err != nil {
			return err
		}
		return json.Unmarshal(raw["then"], n.Then)

	case raw["and"] != nil:
		n.Kind = NodeAnd
		return json.Unmarshal(raw["and"], &n.Children)

	case raw["or"] != nil:
		n.Kind = NodeOr
		return json.Unmarshal(raw["or"], &n.Children)

	case raw["call"] != nil:
		n.Kind = NodeCall
		if err := json.Unmarshal(raw["call"], &n.Name); err != nil {
			return fmt.Errorf("%w: call: %v", ErrMalformedRule, err)
		}
		if v, ok := raw["args"]; ok {
			n.HasArgs = true
			return decodeArgs(v, &n.Args)
		}
		return nil

	case raw["condition"] != nil:
		n.Kind = NodeCondition
		if err := json.Unmarshal(raw["condition"], &n.Name); err != nil {
			return fmt.Errorf("%w: condition: %v", ErrMalformedRule, err)
		}
		for _, k := range keys {
			if reservedKeys[k] {
				continue
			}
			var v any
			if err := json.Unmarshal(raw[k], &v); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrMalformedRule, k, err)
			}
			n.Fields = append(n.Fields, Field{Name: k, Value: v})
		}
		return nil

	default:
		return fmt.Errorf("%w: object with keys %v matches no node variant", ErrMalformedRule, keys)
	}
}

// MarshalJSON encodes the rule tree in the same shape UnmarshalJSON accepts,
// keeping field order.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	w := objectWriter{buf: &buf}
	buf.WriteByte('{')

	switch n.Kind {
	case NodeIf:
		w.put("if", n.If)
		w.put("then", n.Then)
	case NodeAnd:
		w.put("and", n.Children)
	case NodeOr:
		w.put("or", n.Children)
	case NodeCall:
		w.put("call", n.Name)
		if n.Property != "" {
			w.put("property", n.Property)
		}
		if n.HasArgs {
			args := make([]any, len(n.Args))
			for i, a := range n.Args {
				if a.IsLiteral {
					args[i] = map[string]any{"literal": a.Literal}
				} else {
					args[i] = a.Path
				}
			}
			w.put("args", args)
		}
	case NodeCondition:
		w.put("property", n.Property)
		w.put("condition", n.Name)
		for _, f := range n.Fields {
			w.put(f.Name, f.Value)
		}
	default:
		return nil, fmt.Errorf("%w: cannot encode %s node", ErrMalformedRule, n.Kind)
	}
	if n.Label != "" {
		w.put("label", n.Label)
	}
	if w.err != nil {
		return nil, w.err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type objectWriter struct {
	buf   *bytes.Buffer
	count int
	err   error
}

func (w *objectWriter) put(key string, v any) {
	if w.err != nil {
		return
	}
	k, _ := json.Marshal(key)
	val, err := json.Marshal(v)
	if err != nil {
		w.err = err
		return
	}
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(val)
	w.count++
}

// decodeOrderedObject splits a JSON object into its keys (declaration order)
// and raw values.
func decodeOrderedObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	raw := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := raw[key]; !dup {
			keys = append(keys, key)
		}
		raw[key] = v
	}
	return keys, raw, nil
}

func decodeArgs(data []byte, out *[]ArgRef) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: args: %v", ErrMalformedRule, err)
	}
	args := make([]ArgRef, 0, len(items))
	for _, item := range items {
		var v any
		if err := json.Unmarshal(item, &v); err != nil {
			return fmt.Errorf("%w: args: %v", ErrMalformedRule, err)
		}
		switch a := v.(type) {
		case string:
			args = append(args, PathArg(a))
		case map[string]any:
			lit, ok := a["literal"]
			if !ok || len(a) != 1 {
				return fmt.Errorf("%w: object argument must be {\"literal\": value}", ErrMalformedRule)
			}
			args = append(args, LiteralArg(lit))
		default:
			args = append(args, LiteralArg(a))
		}
	}
	*out = args
	return nil
}

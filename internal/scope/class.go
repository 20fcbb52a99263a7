// # internal/scope/class.go
package scope

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

const constructorName = "__init__"

// classBody is the per-class material the analyzer works from: class-level
// assignment targets and the method table. Decorated methods keep their
// wrapper node so the skip marker still applies when they are checked.
type classBody struct {
	vars        []string
	methodOrder []string
	methods     map[string]*sitter.Node
}

func collectClassBody(class *sitter.Node, source []byte) classBody {
	cb := classBody{methods: make(map[string]*sitter.Node)}
	body := class.ChildByFieldName("body")
	if body == nil {
		return cb
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		item := body.NamedChild(i)
		switch item.Kind() {
		case "expression_statement":
			for j := uint(0); j < item.NamedChildCount(); j++ {
				expr := item.NamedChild(j)
				if expr.Kind() != "assignment" {
					continue
				}
				left := expr.ChildByFieldName("left")
				if left != nil && left.Kind() == "identifier" {
					cb.vars = append(cb.vars, nodeText(left, source))
				}
			}
		case "function_definition":
			name := nodeText(item.ChildByFieldName("name"), source)
			cb.methodOrder = append(cb.methodOrder, name)
			cb.methods[name] = item
		case "decorated_definition":
			def := item.ChildByFieldName("definition")
			if def == nil || def.Kind() != "function_definition" {
				continue
			}
			name := nodeText(def.ChildByFieldName("name"), source)
			cb.methodOrder = append(cb.methodOrder, name)
			cb.methods[name] = item
		}
	}
	return cb
}

// isSubclass reports whether the class declares at least one positional base.
func isSubclass(class *sitter.Node) bool {
	supers := class.ChildByFieldName("superclasses")
	if supers == nil {
		return false
	}
	for i := uint(0); i < supers.NamedChildCount(); i++ {
		if supers.NamedChild(i).Kind() != "keyword_argument" {
			return true
		}
	}
	return false
}

// receiverAssignments collects every "<receiver>.x" assignment target found
// anywhere in any method body. Used for the conservative widening when the
// constructor delegates to helper methods.
func receiverAssignments(cb classBody, source []byte, receiver string) []string {
	var result []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "assignment" {
			for _, name := range AssignTargets(n.ChildByFieldName("left"), source, receiver) {
				if strings.HasPrefix(name, receiver+".") {
					result = append(result, name)
				}
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	for _, name := range cb.methodOrder {
		walk(cb.methods[name])
	}
	return result
}

// constructorCallsMethod scans the constructor for a receiver-qualified call
// to another method of the same class.
func constructorCallsMethod(cb classBody, source []byte, receiver string) bool {
	init, ok := cb.methods[constructorName]
	if !ok {
		return false
	}
	found := false
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || found {
			return
		}
		if n.Kind() == "call" {
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Kind() == "attribute" {
				obj := fn.ChildByFieldName("object")
				if obj != nil && obj.Kind() == "identifier" && nodeText(obj, source) == receiver {
					if _, isMethod := cb.methods[nodeText(fn.ChildByFieldName("attribute"), source)]; isMethod {
						found = true
						return
					}
				}
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(init)
	return found
}

// AnalyzeClass checks every method of a class body.
//
// The constructor goes first with attribute checking disabled, since its job
// is to establish the attributes; the receiver attributes it leaves bound
// become the known-attribute set for the remaining methods. Class-level
// variables are visible both as plain names and through the receiver, and
// every method is visible through the receiver. Declaring a base class
// disables attribute checking for non-constructor methods entirely: the base
// class's attributes are invisible to static analysis. When the constructor
// delegates to a same-class helper, any receiver assignment found anywhere
// in the class is conservatively assumed reachable from it.
//
// file selects batch mode exactly as for NewChecker; in strict mode the
// first finding aborts the class.
func AnalyzeClass(class *sitter.Node, source []byte, globals []string, file string, conv Conventions) ([]Diagnostic, error) {
	if conv == (Conventions{}) {
		conv = DefaultConventions()
	}
	cb := collectClassBody(class, source)
	sub := isSubclass(class)

	scopeVars := append([]string{}, globals...)
	scopeVars = append(scopeVars, cb.vars...)
	for _, m := range cb.methodOrder {
		scopeVars = append(scopeVars, conv.Receiver+"."+m)
	}

	attrs := make([]string, 0, len(cb.vars))
	for _, v := range cb.vars {
		attrs = append(attrs, conv.Receiver+"."+v)
	}

	var diags []Diagnostic
	if init, ok := cb.methods[constructorName]; ok {
		checker := NewChecker(source, Options{
			Globals:     scopeVars,
			AttrCheck:   false,
			FuncName:    constructorName,
			File:        file,
			Conventions: conv,
		})
		if err := checker.Check(init); err != nil {
			return append(diags, checker.Diagnostics()...), err
		}
		diags = append(diags, checker.Diagnostics()...)
		prefix := conv.Receiver + "."
		for _, name := range checker.LastFuncScope().Names() {
			if strings.HasPrefix(name, prefix) {
				attrs = append(attrs, name)
			}
		}
	}

	if !sub && constructorCallsMethod(cb, source, conv.Receiver) {
		attrs = append(attrs, receiverAssignments(cb, source, conv.Receiver)...)
	}

	for _, name := range cb.methodOrder {
		if name == constructorName {
			continue
		}
		checker := NewChecker(source, Options{
			Globals:     scopeVars,
			Attrs:       attrs,
			AttrCheck:   !sub,
			FuncName:    name,
			File:        file,
			Conventions: conv,
		})
		if err := checker.Check(cb.methods[name]); err != nil {
			return append(diags, checker.Diagnostics()...), err
		}
		diags = append(diags, checker.Diagnostics()...)
	}

	return diags, nil
}

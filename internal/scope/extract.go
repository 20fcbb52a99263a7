// # internal/scope/extract.go
package scope

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// AssignTargets flattens an assignment target into the names it binds, in
// left-to-right order. Nested tuple/list destructuring and starred targets
// unpack to their leaves. Attribute targets on the receiver name bind the
// namespaced form "<receiver>.<attr>"; other attribute and subscript targets
// bind nothing.
func AssignTargets(target *sitter.Node, source []byte, receiver string) []string {
	var result []string
	var rec func(n *sitter.Node)
	rec = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "identifier":
			result = append(result, nodeText(n, source))
		case "tuple_pattern", "list_pattern", "pattern_list", "tuple", "list":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				rec(n.NamedChild(i))
			}
		case "list_splat_pattern", "list_splat":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				rec(n.NamedChild(i))
			}
		case "attribute":
			obj := n.ChildByFieldName("object")
			if obj != nil && obj.Kind() == "identifier" && nodeText(obj, source) == receiver {
				result = append(result, receiver+"."+nodeText(n.ChildByFieldName("attribute"), source))
			}
		case "parenthesized_expression":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				rec(n.NamedChild(i))
			}
		case "as_pattern_target":
			// A renamed expression node behind "as"; a bare name has no
			// named children of its own.
			if n.NamedChildCount() == 0 {
				result = append(result, nodeText(n, source))
				return
			}
			for i := uint(0); i < n.NamedChildCount(); i++ {
				rec(n.NamedChild(i))
			}
		}
	}
	rec(target)
	return result
}

// ComprehensionTargets extracts the iteration targets of every generator
// clause of a comprehension node: a simple name, or one level of tuple
// destructuring. Deeper nesting in a comprehension target is not modeled.
func ComprehensionTargets(comp *sitter.Node, source []byte) []string {
	var result []string
	for i := uint(0); i < comp.NamedChildCount(); i++ {
		clause := comp.NamedChild(i)
		if clause.Kind() != "for_in_clause" {
			continue
		}
		left := clause.ChildByFieldName("left")
		if left == nil {
			continue
		}
		switch left.Kind() {
		case "identifier":
			result = append(result, nodeText(left, source))
		case "tuple_pattern", "pattern_list", "tuple":
			for j := uint(0); j < left.NamedChildCount(); j++ {
				elt := left.NamedChild(j)
				if elt.Kind() == "identifier" {
					result = append(result, nodeText(elt, source))
				}
			}
		}
	}
	return result
}

// ImportBindings lists the names an import statement makes visible.
//
// "import a.b.c" binds the full dotted path and its top-level package;
// "import a.b as x" binds the dotted path and the alias. "from m import n"
// binds both n and the qualified "m.n", enabling qualified-name lookups;
// aliases replace the plain name. Wildcard imports bind nothing checkable.
func ImportBindings(node *sitter.Node, source []byte) []string {
	var result []string
	switch node.Kind() {
	case "import_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch child.Kind() {
			case "dotted_name", "identifier":
				module := nodeText(child, source)
				result = append(result, module)
				if head, _, found := strings.Cut(module, "."); found {
					result = append(result, head)
				}
			case "aliased_import":
				result = append(result,
					nodeText(child.ChildByFieldName("name"), source),
					nodeText(child.ChildByFieldName("alias"), source))
			}
		}
	case "import_from_statement":
		module := ""
		mod := node.ChildByFieldName("module_name")
		if mod != nil {
			module = strings.TrimLeft(nodeText(mod, source), ".")
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if mod != nil && child.StartByte() == mod.StartByte() && child.EndByte() == mod.EndByte() {
				continue
			}
			switch child.Kind() {
			case "dotted_name", "identifier":
				name := nodeText(child, source)
				if module != "" {
					result = append(result, module+"."+name)
				}
				result = append(result, name)
			case "aliased_import":
				name := nodeText(child.ChildByFieldName("name"), source)
				if module != "" {
					result = append(result, module+"."+name)
				}
				result = append(result, nodeText(child.ChildByFieldName("alias"), source))
			}
		}
	}
	return result
}

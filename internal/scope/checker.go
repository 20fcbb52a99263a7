// # internal/scope/checker.go
package scope

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Conventions are the name-based markers the checker recognizes. They are
// matched by name, not identity: the receiver convention, the decorator that
// disables checking, and the call that turns a with block into an explicit
// scope boundary.
type Conventions struct {
	Receiver      string
	SkipDecorator string
	ScopeBoundary string
}

func DefaultConventions() Conventions {
	return Conventions{
		Receiver:      "self",
		SkipDecorator: "no_block_scoping",
		ScopeBoundary: "block_scope",
	}
}

// Options configure one Checker. File selects batch mode: when set, every
// diagnostic is collected and traversal continues; when empty the first
// diagnostic is returned as a *CheckError and traversal of the unit stops.
type Options struct {
	Globals     []string
	Attrs       []string
	AttrCheck   bool
	FuncName    string
	File        string
	Conventions Conventions
}

// Checker walks one function, method or class body and re-derives
// block-level visibility, reporting reads that a block-scoped language would
// treat as undefined. One Checker per unit; never reused.
type Checker struct {
	source []byte
	conv   Conventions

	stack     *Stack
	loopVars  map[string]struct{}
	attrCheck bool
	funcName  string
	file      string

	diags         []Diagnostic
	lastFuncScope Scope
}

func NewChecker(source []byte, opts Options) *Checker {
	if opts.Conventions == (Conventions{}) {
		opts.Conventions = DefaultConventions()
	}
	bottom := NewScope(opts.Globals...)
	for _, b := range pythonBuiltins {
		bottom.Add(b)
	}
	for _, a := range opts.Attrs {
		bottom.Add(a)
	}
	return &Checker{
		source:        source,
		conv:          opts.Conventions,
		stack:         NewStack(bottom),
		loopVars:      make(map[string]struct{}),
		attrCheck:     opts.AttrCheck,
		funcName:      opts.FuncName,
		file:          opts.File,
		lastFuncScope: NewScope(),
	}
}

// Diagnostics returns the findings collected so far, in traversal order.
func (c *Checker) Diagnostics() []Diagnostic {
	return c.diags
}

// LastFuncScope is the scope retained when the most recently visited
// function body finished. For a constructor this holds the instance
// attributes it bound.
func (c *Checker) LastFuncScope() Scope {
	return c.lastFuncScope
}

// Check walks the unit. In strict mode the returned error is the first
// finding; in batch mode the error is always nil and Diagnostics carries
// everything found.
func (c *Checker) Check(node *sitter.Node) error {
	return c.visit(node)
}

func (c *Checker) strict() bool {
	return c.file == ""
}

func (c *Checker) unit() string {
	if c.file != "" {
		return c.file
	}
	return c.funcName
}

func (c *Checker) report(node *sitter.Node, msg string) error {
	d := Diagnostic{
		Unit:    c.unit(),
		Line:    int(node.StartPosition().Row) + 1,
		Message: msg,
	}
	c.diags = append(c.diags, d)
	if c.strict() {
		return &CheckError{Diagnostic: d}
	}
	return nil
}

func (c *Checker) text(node *sitter.Node) string {
	return nodeText(node, c.source)
}

func (c *Checker) checkVisible(node *sitter.Node, name string) error {
	if c.stack.Visible(name) {
		return nil
	}
	return c.report(node, fmt.Sprintf("variable %q cannot be found in scope; variables in scope: %v", name, c.stack.NonGlobal()))
}

// inScope runs f inside a freshly pushed scope seeded with names and returns
// the popped scope. The pop happens even when f reports, so error paths
// never unbalance the stack.
func (c *Checker) inScope(names []string, f func() error) (Scope, error) {
	c.stack.Push(names...)
	err := f()
	return c.stack.Pop(), err
}

func (c *Checker) visitChildren(node *sitter.Node) error {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if err := c.visit(node.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) visit(node *sitter.Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier":
		return c.checkVisible(node, c.text(node))
	case "attribute":
		return c.visitAttribute(node)
	case "assignment":
		return c.visitAssignment(node)
	case "augmented_assignment":
		return c.visitAugmentedAssignment(node)
	case "named_expression":
		return c.visitNamedExpression(node)
	case "keyword_argument":
		// The keyword name is not a variable read.
		return c.visit(node.ChildByFieldName("value"))
	case "decorated_definition":
		return c.visitDecorated(node)
	case "function_definition":
		return c.visitFunction(node)
	case "class_definition":
		return c.visitClass(node)
	case "lambda":
		return c.visitLambda(node)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		return c.visitComprehension(node)
	case "for_statement":
		return c.visitFor(node)
	case "while_statement":
		return c.visitWhile(node)
	case "if_statement":
		return c.visitIf(node)
	case "try_statement":
		return c.visitTry(node)
	case "with_statement":
		return c.visitWith(node)
	case "import_statement", "import_from_statement":
		c.stack.BindAll(ImportBindings(node, c.source))
		return nil
	case "global_statement", "nonlocal_statement":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if child := node.NamedChild(i); child.Kind() == "identifier" {
				c.stack.Bind(c.text(child))
			}
		}
		return nil
	case "match_statement":
		// Pattern-bound variables are not modeled.
		return nil
	default:
		return c.visitChildren(node)
	}
}

// visitAttribute checks receiver attributes as namespaced reads, then
// descends into the object expression only; the attribute name itself is
// never a variable read.
func (c *Checker) visitAttribute(node *sitter.Node) error {
	obj := node.ChildByFieldName("object")
	if c.attrCheck && obj != nil && obj.Kind() == "identifier" && c.text(obj) == c.conv.Receiver {
		attr := c.conv.Receiver + "." + c.text(node.ChildByFieldName("attribute"))
		if err := c.checkVisible(node, attr); err != nil {
			return err
		}
	}
	return c.visit(obj)
}

// visitStoreTarget descends a store target checking only the reads embedded
// in it: subscript values and indexes, and non-receiver attribute objects.
// The bound leaves themselves are not reads.
func (c *Checker) visitStoreTarget(node *sitter.Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier":
		return nil
	case "tuple_pattern", "list_pattern", "pattern_list", "tuple", "list",
		"list_splat_pattern", "list_splat", "parenthesized_expression":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if err := c.visitStoreTarget(node.NamedChild(i)); err != nil {
				return err
			}
		}
		return nil
	case "attribute":
		obj := node.ChildByFieldName("object")
		if obj != nil && obj.Kind() == "identifier" && c.text(obj) == c.conv.Receiver {
			return nil
		}
		return c.visit(obj)
	case "subscript":
		if err := c.visit(node.ChildByFieldName("value")); err != nil {
			return err
		}
		return c.visit(node.ChildByFieldName("subscript"))
	default:
		return c.visit(node)
	}
}

// visitAssignment covers plain and annotated assignment, including the
// value-less "x: int" form, which still binds its target. Targets are bound
// before the right side is visited.
func (c *Checker) visitAssignment(node *sitter.Node) error {
	left := node.ChildByFieldName("left")
	c.stack.BindAll(AssignTargets(left, c.source, c.conv.Receiver))
	if err := c.visitStoreTarget(left); err != nil {
		return err
	}
	if err := c.visit(node.ChildByFieldName("type")); err != nil {
		return err
	}
	return c.visit(node.ChildByFieldName("right"))
}

// Augmented assignment cannot introduce a name: the target must already be
// visible.
func (c *Checker) visitAugmentedAssignment(node *sitter.Node) error {
	left := node.ChildByFieldName("left")
	for _, name := range AssignTargets(left, c.source, c.conv.Receiver) {
		if err := c.checkVisible(node, name); err != nil {
			return err
		}
	}
	if err := c.visitStoreTarget(left); err != nil {
		return err
	}
	return c.visit(node.ChildByFieldName("right"))
}

// A walrus outside a condition binds its target into the current top scope,
// permanently.
func (c *Checker) visitNamedExpression(node *sitter.Node) error {
	if name := node.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
		c.stack.Bind(c.text(name))
	}
	return c.visit(node.ChildByFieldName("value"))
}

// walrusTargets collects the names bound by assignment expressions anywhere
// inside a condition. Targets of a walrus nested in another walrus's value
// are not collected.
func (c *Checker) walrusTargets(cond *sitter.Node) []string {
	var result []string
	var rec func(n *sitter.Node)
	rec = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "named_expression" {
			if name := n.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				result = append(result, c.text(name))
			}
			return
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			rec(n.NamedChild(i))
		}
	}
	rec(cond)
	return result
}

func (c *Checker) visitDecorated(node *sitter.Node) error {
	var decorators []*sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child.Kind() == "decorator" {
			decorators = append(decorators, child)
		}
	}
	for _, dec := range decorators {
		expr := dec.NamedChild(0)
		if expr != nil && expr.Kind() == "identifier" && c.text(expr) == c.conv.SkipDecorator {
			return nil
		}
	}
	for _, dec := range decorators {
		if err := c.visit(dec.NamedChild(0)); err != nil {
			return err
		}
	}
	return c.visit(node.ChildByFieldName("definition"))
}

// parameterNames pulls positional, defaulted, variadic, keyword-variadic and
// keyword-only parameter names out of a parameters node.
func (c *Checker) parameterNames(params *sitter.Node) []string {
	var names []string
	if params == nil {
		return names
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		switch p.Kind() {
		case "identifier":
			names = append(names, c.text(p))
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				names = append(names, c.text(name))
			}
		case "typed_parameter":
			inner := p.NamedChild(0)
			if inner != nil && inner.Kind() == "identifier" {
				names = append(names, c.text(inner))
			} else if inner != nil {
				names = append(names, AssignTargets(inner, c.source, c.conv.Receiver)...)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if inner := p.NamedChild(0); inner != nil && inner.Kind() == "identifier" {
				names = append(names, c.text(inner))
			}
		}
	}
	return names
}

// visitParameterExpressions visits default values and annotations, which are
// read positions. Runs inside the function scope.
func (c *Checker) visitParameterExpressions(params *sitter.Node) error {
	if params == nil {
		return nil
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		switch p.Kind() {
		case "default_parameter":
			if err := c.visit(p.ChildByFieldName("value")); err != nil {
				return err
			}
		case "typed_parameter":
			if err := c.visit(p.ChildByFieldName("type")); err != nil {
				return err
			}
		case "typed_default_parameter":
			if err := c.visit(p.ChildByFieldName("type")); err != nil {
				return err
			}
			if err := c.visit(p.ChildByFieldName("value")); err != nil {
				return err
			}
		}
	}
	return nil
}

// visitFunction binds the function name into the current scope first, so
// recursion and forward use by sibling definitions resolve, then checks the
// body in a fresh scope seeded with the parameters. The scope left behind at
// function exit is retained for constructor attribute discovery.
func (c *Checker) visitFunction(node *sitter.Node) error {
	if name := node.ChildByFieldName("name"); name != nil {
		c.stack.Bind(c.text(name))
	}
	params := node.ChildByFieldName("parameters")
	_, err := c.inScope(c.parameterNames(params), func() error {
		if err := c.visitParameterExpressions(params); err != nil {
			return err
		}
		if err := c.visit(node.ChildByFieldName("return_type")); err != nil {
			return err
		}
		if err := c.visit(node.ChildByFieldName("body")); err != nil {
			return err
		}
		c.lastFuncScope = c.stack.Top().Clone()
		return nil
	})
	return err
}

func (c *Checker) visitLambda(node *sitter.Node) error {
	params := node.ChildByFieldName("parameters")
	_, err := c.inScope(c.parameterNames(params), func() error {
		if err := c.visitParameterExpressions(params); err != nil {
			return err
		}
		return c.visit(node.ChildByFieldName("body"))
	})
	return err
}

// A nested class introduces no scope of its own here; its methods push their
// own scopes as functions.
func (c *Checker) visitClass(node *sitter.Node) error {
	if name := node.ChildByFieldName("name"); name != nil {
		c.stack.Bind(c.text(name))
	}
	if err := c.visit(node.ChildByFieldName("superclasses")); err != nil {
		return err
	}
	return c.visit(node.ChildByFieldName("body"))
}

// visitComprehension pushes one scope seeded with every generator target and
// visits the element (or key/value pair) and filter conditions inside it.
// Iterable expressions are not visited; comprehension bindings never leak.
func (c *Checker) visitComprehension(node *sitter.Node) error {
	_, err := c.inScope(ComprehensionTargets(node, c.source), func() error {
		if err := c.visit(node.ChildByFieldName("body")); err != nil {
			return err
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() != "if_clause" {
				continue
			}
			if err := c.visit(child.NamedChild(0)); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// visitFor guards against a nested loop rebinding a name an enclosing,
// still-open loop already uses. Sequential sibling loops may reuse a name;
// the wildcard "_" is always exempt. Loop targets live in a scope that is
// discarded when the loop ends.
func (c *Checker) visitFor(node *sitter.Node) error {
	targets := AssignTargets(node.ChildByFieldName("left"), c.source, c.conv.Receiver)
	for _, v := range targets {
		if v == "_" {
			continue
		}
		if _, open := c.loopVars[v]; open {
			if err := c.report(node, fmt.Sprintf("cannot reuse variable %q as it is already used by an enclosing loop", v)); err != nil {
				return err
			}
		}
	}
	for _, v := range targets {
		c.loopVars[v] = struct{}{}
	}
	defer func() {
		for _, v := range targets {
			delete(c.loopVars, v)
		}
	}()

	_, err := c.inScope(targets, func() error {
		if err := c.visit(node.ChildByFieldName("right")); err != nil {
			return err
		}
		if err := c.visit(node.ChildByFieldName("body")); err != nil {
			return err
		}
		return c.visitElseClauses(node)
	})
	return err
}

func (c *Checker) visitWhile(node *sitter.Node) error {
	cond := node.ChildByFieldName("condition")
	_, err := c.inScope(c.walrusTargets(cond), func() error {
		if err := c.visit(cond); err != nil {
			return err
		}
		if err := c.visit(node.ChildByFieldName("body")); err != nil {
			return err
		}
		return c.visitElseClauses(node)
	})
	return err
}

func (c *Checker) visitElseClauses(node *sitter.Node) error {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == "else_clause" {
			if err := c.visit(child.ChildByFieldName("body")); err != nil {
				return err
			}
		}
	}
	return nil
}

// visitIf runs each branch in its own scope. Walrus bindings from each
// condition accumulate left to right, since conditions are evaluated in
// sequence. After the chain, the intersection of every branch scope is
// promoted into the parent scope, but only when a terminal else makes the
// chain exhaustive: without it, the no-branch-taken path binds nothing.
func (c *Checker) visitIf(node *sitter.Node) error {
	var retained []Scope

	cond := node.ChildByFieldName("condition")
	walrus := c.walrusTargets(cond)
	branch, err := c.inScope(walrus, func() error {
		if err := c.visit(cond); err != nil {
			return err
		}
		return c.visit(node.ChildByFieldName("consequence"))
	})
	if err != nil {
		return err
	}
	retained = append(retained, branch)

	hasElse := false
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "elif_clause":
			elifCond := child.ChildByFieldName("condition")
			walrus = append(walrus, c.walrusTargets(elifCond)...)
			branch, err := c.inScope(walrus, func() error {
				if err := c.visit(elifCond); err != nil {
					return err
				}
				return c.visit(child.ChildByFieldName("consequence"))
			})
			if err != nil {
				return err
			}
			retained = append(retained, branch)
		case "else_clause":
			hasElse = true
			branch, err := c.inScope(walrus, func() error {
				return c.visit(child.ChildByFieldName("body"))
			})
			if err != nil {
				return err
			}
			retained = append(retained, branch)
		}
	}

	if hasElse {
		c.stack.Promote(Intersect(retained))
	}
	return nil
}

// visitTry checks each handler first, in a fresh scope seeded only with the
// exception-binding name and with the visibility that existed before the try
// statement: an exception may fire before any try-body binding executes, and
// handler bindings never leak. The try, else and finally bodies then run in
// the current scope, so their bindings stay visible afterwards.
func (c *Checker) visitTry(node *sitter.Node) error {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "except_clause" && child.Kind() != "except_group_clause" {
			continue
		}
		var seed []string
		var typeExpr, body *sitter.Node
		for j := uint(0); j < child.NamedChildCount(); j++ {
			sub := child.NamedChild(j)
			switch sub.Kind() {
			case "block":
				body = sub
			case "as_pattern":
				typeExpr = sub.NamedChild(0)
				if alias := sub.ChildByFieldName("alias"); alias != nil {
					seed = append(seed, c.text(alias))
				}
			default:
				typeExpr = sub
			}
		}
		_, err := c.inScope(seed, func() error {
			if err := c.visit(typeExpr); err != nil {
				return err
			}
			return c.visit(body)
		})
		if err != nil {
			return err
		}
	}

	if err := c.visit(node.ChildByFieldName("body")); err != nil {
		return err
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "else_clause":
			if err := c.visit(child.ChildByFieldName("body")); err != nil {
				return err
			}
		case "finally_clause":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				if block := child.NamedChild(j); block.Kind() == "block" {
					if err := c.visit(block); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// visitWith isolates the body only when the first context manager is a call
// to the scope-boundary marker; otherwise the bound names merge into the
// current scope and stay visible after the statement.
func (c *Checker) visitWith(node *sitter.Node) error {
	var items []*sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "with_clause" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			if item := child.NamedChild(j); item.Kind() == "with_item" {
				items = append(items, item)
			}
		}
	}

	var bound []string
	var ctxExprs []*sitter.Node
	for _, item := range items {
		value := item.ChildByFieldName("value")
		if value != nil && value.Kind() == "as_pattern" {
			ctxExprs = append(ctxExprs, value.NamedChild(0))
			if alias := value.ChildByFieldName("alias"); alias != nil {
				bound = append(bound, AssignTargets(alias, c.source, c.conv.Receiver)...)
			}
		} else {
			ctxExprs = append(ctxExprs, value)
		}
	}

	boundary := false
	if len(ctxExprs) > 0 && ctxExprs[0] != nil && ctxExprs[0].Kind() == "call" {
		fn := ctxExprs[0].ChildByFieldName("function")
		boundary = fn != nil && fn.Kind() == "identifier" && c.text(fn) == c.conv.ScopeBoundary
	}

	visitAll := func() error {
		for _, expr := range ctxExprs {
			if err := c.visit(expr); err != nil {
				return err
			}
		}
		return c.visit(node.ChildByFieldName("body"))
	}

	if boundary {
		_, err := c.inScope(bound, visitAll)
		return err
	}
	c.stack.BindAll(bound)
	return visitAll()
}

// # internal/scope/checker_test.go
package scope

import (
	"errors"
	"strings"
	"testing"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

func parseRoot(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	p := sitter.NewParser()
	t.Cleanup(p.Close)
	p.SetLanguage(sitter.NewLanguage(tree_sitter_python.Language()))
	tree := p.Parse([]byte(src), nil)
	if tree == nil {
		t.Fatal("parse failed")
	}
	t.Cleanup(tree.Close)
	return tree.RootNode(), []byte(src)
}

func firstOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == kind {
		return node
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if found := firstOfKind(node.NamedChild(i), kind); found != nil {
			return found
		}
	}
	return nil
}

// checkBatch runs the first function of src in batch mode and returns every
// diagnostic collected.
func checkBatch(t *testing.T, src string, globals ...string) []Diagnostic {
	t.Helper()
	root, source := parseRoot(t, src)
	fn := firstOfKind(root, "function_definition")
	if fn == nil {
		t.Fatal("no function definition in source")
	}
	c := NewChecker(source, Options{Globals: globals, File: "test.py"})
	if err := c.Check(fn); err != nil {
		t.Fatalf("batch check returned error: %v", err)
	}
	return c.Diagnostics()
}

func wantClean(t *testing.T, diags []Diagnostic) {
	t.Helper()
	for _, d := range diags {
		t.Errorf("unexpected diagnostic: %s", d)
	}
}

func wantFinding(t *testing.T, diags []Diagnostic, substr string) {
	t.Helper()
	for _, d := range diags {
		if strings.Contains(d.Message, substr) {
			return
		}
	}
	t.Errorf("expected a diagnostic containing %q, got %v", substr, diags)
}

func TestLocalBindingVisible(t *testing.T) {
	diags := checkBatch(t, `
def f():
    x = 1
    print(x)
`)
	wantClean(t, diags)
}

func TestUndefinedReadReported(t *testing.T) {
	diags := checkBatch(t, `
def f():
    print(x)
`)
	wantFinding(t, diags, `"x"`)
}

func TestConditionalBindingNotVisibleAfterIf(t *testing.T) {
	diags := checkBatch(t, `
def f(cond):
    if cond:
        x = 1
    print(x)
`)
	wantFinding(t, diags, `"x"`)
}

func TestExhaustiveIfElsePromotes(t *testing.T) {
	diags := checkBatch(t, `
def f(cond):
    if cond:
        x = 1
    else:
        x = 2
    print(x)
`)
	wantClean(t, diags)
}

func TestPartialBranchBindingReported(t *testing.T) {
	diags := checkBatch(t, `
def f(a, b):
    if a:
        x = 1
    elif b:
        y = 2
    else:
        x = 3
    print(x)
`)
	// x is missing from the elif arm, so the intersection drops it.
	wantFinding(t, diags, `"x"`)
}

func TestElifChainWithCommonBinding(t *testing.T) {
	diags := checkBatch(t, `
def f(a, b):
    if a:
        x = 1
    elif b:
        x = 2
    else:
        x = 3
    print(x)
`)
	wantClean(t, diags)
}

func TestWalrusInConditionVisibleAcrossChain(t *testing.T) {
	diags := checkBatch(t, `
def f(fetch):
    if (v := fetch()) is None:
        print(v)
    elif v > 0:
        print(v)
    else:
        print(v)
`)
	wantClean(t, diags)
}

func TestWalrusNotVisibleAfterNonExhaustiveIf(t *testing.T) {
	diags := checkBatch(t, `
def f(fetch):
    if (v := fetch()):
        pass
    print(v)
`)
	wantFinding(t, diags, `"v"`)
}

func TestWalrusInStatementBindsPermanently(t *testing.T) {
	diags := checkBatch(t, `
def f(fetch):
    total = (n := fetch()) + n
    print(n, total)
`)
	wantClean(t, diags)
}

func TestLoopTargetScopedToLoop(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    for item in items:
        print(item)
    print(item)
`)
	wantFinding(t, diags, `"item"`)
}

func TestLoopBodyBindingDiscarded(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    for item in items:
        last = item
    print(last)
`)
	wantFinding(t, diags, `"last"`)
}

func TestNestedLoopReuseReported(t *testing.T) {
	diags := checkBatch(t, `
def f(rows):
    for i in rows:
        for i in i:
            print(i)
`)
	wantFinding(t, diags, "enclosing loop")
}

func TestSequentialLoopsMayReuseTarget(t *testing.T) {
	diags := checkBatch(t, `
def f(a, b):
    for i in a:
        print(i)
    for i in b:
        print(i)
`)
	wantClean(t, diags)
}

func TestWildcardLoopTargetExempt(t *testing.T) {
	diags := checkBatch(t, `
def f(grid):
    for _ in grid:
        for _ in grid:
            pass
`)
	wantClean(t, diags)
}

func TestTupleLoopTargets(t *testing.T) {
	diags := checkBatch(t, `
def f(pairs):
    for k, v in pairs:
        print(k, v)
`)
	wantClean(t, diags)
}

func TestWhileWalrusCondition(t *testing.T) {
	diags := checkBatch(t, `
def f(read):
    while (chunk := read()):
        print(chunk)
    print(chunk)
`)
	// The walrus scope is discarded with the loop.
	wantFinding(t, diags, `"chunk"`)
}

func TestTryHandlerSeesPreTryScopeOnly(t *testing.T) {
	diags := checkBatch(t, `
def f(load):
    try:
        data = load()
    except ValueError:
        print(data)
`)
	wantFinding(t, diags, `"data"`)
}

func TestTryExceptionAliasVisibleInHandler(t *testing.T) {
	diags := checkBatch(t, `
def f(load):
    try:
        load()
    except ValueError as exc:
        print(exc)
`)
	wantClean(t, diags)
}

func TestTryBodyBindingsVisibleAfter(t *testing.T) {
	diags := checkBatch(t, `
def f(load):
    try:
        data = load()
    except ValueError:
        raise
    print(data)
`)
	wantClean(t, diags)
}

func TestTryElseAndFinallyShareScope(t *testing.T) {
	diags := checkBatch(t, `
def f(load):
    try:
        data = load()
    except ValueError:
        raise
    else:
        result = data
    finally:
        print(result)
`)
	wantClean(t, diags)
}

func TestHandlerBindingDoesNotLeak(t *testing.T) {
	diags := checkBatch(t, `
def f(load):
    try:
        load()
    except ValueError as exc:
        pass
    print(exc)
`)
	wantFinding(t, diags, `"exc"`)
}

func TestPlainWithBindingLeaks(t *testing.T) {
	diags := checkBatch(t, `
def f(path):
    with open(path) as fp:
        fp.read()
    fp.close()
`)
	wantClean(t, diags)
}

func TestScopeBoundaryWithIsolatesBody(t *testing.T) {
	diags := checkBatch(t, `
def f(path):
    with block_scope(open(path)) as fp:
        fp.read()
    fp.close()
`, "block_scope")
	wantFinding(t, diags, `"fp"`)
}

func TestComprehensionTargetScoped(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    squares = [x * x for x in items]
    print(squares)
    print(x)
`)
	wantFinding(t, diags, `"x"`)
}

func TestComprehensionFilterUsesTarget(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    return [x for x in items if x > 0]
`)
	wantClean(t, diags)
}

func TestDictComprehensionPair(t *testing.T) {
	diags := checkBatch(t, `
def f(pairs):
    return {k: v for k, v in pairs}
`)
	wantClean(t, diags)
}

func TestGeneratorExpressionScoped(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    total = sum(x for x in items)
    print(x)
`)
	wantFinding(t, diags, `"x"`)
}

func TestAugmentedAssignmentRequiresBinding(t *testing.T) {
	diags := checkBatch(t, `
def f():
    total += 1
`)
	wantFinding(t, diags, `"total"`)
}

func TestAugmentedAssignmentOnBoundName(t *testing.T) {
	diags := checkBatch(t, `
def f():
    total = 0
    total += 1
    return total
`)
	wantClean(t, diags)
}

func TestAnnotatedAssignmentBindsTarget(t *testing.T) {
	diags := checkBatch(t, `
def f():
    x: int = 1
    y: int
    print(x, y)
`)
	wantClean(t, diags)
}

func TestTupleUnpackingBindsAllLeaves(t *testing.T) {
	diags := checkBatch(t, `
def f(pair):
    a, (b, c) = pair
    first, *rest = pair
    print(a, b, c, first, rest)
`)
	wantClean(t, diags)
}

func TestSubscriptStoreChecksValue(t *testing.T) {
	diags := checkBatch(t, `
def f(i):
    table[i] = 1
`)
	wantFinding(t, diags, `"table"`)
}

func TestKeywordArgumentNameNotARead(t *testing.T) {
	diags := checkBatch(t, `
def f():
    g(timeout=30)
`, "g")
	wantClean(t, diags)
}

func TestAttributeNameNotARead(t *testing.T) {
	diags := checkBatch(t, `
def f(conn):
    conn.cursor().execute(query)
`, "query")
	wantClean(t, diags)
}

func TestDunderNamesAlwaysVisible(t *testing.T) {
	diags := checkBatch(t, `
def f():
    print(__name__, __file__)
`)
	wantClean(t, diags)
}

func TestImportInsideFunctionBinds(t *testing.T) {
	diags := checkBatch(t, `
def f(p):
    import os
    import json as j
    from pathlib import Path
    return os.path.join(p), j.dumps(p), Path(p)
`)
	wantClean(t, diags)
}

func TestGlobalStatementBinds(t *testing.T) {
	diags := checkBatch(t, `
def f():
    global counter
    counter = counter + 1
`)
	wantClean(t, diags)
}

func TestLambdaParametersScoped(t *testing.T) {
	diags := checkBatch(t, `
def f(items):
    key = lambda pair: pair[1]
    return sorted(items, key=key)
`)
	wantClean(t, diags)
}

func TestDefaultParameterExpressionChecked(t *testing.T) {
	diags := checkBatch(t, `
def f(limit=fallback):
    return limit
`)
	wantFinding(t, diags, `"fallback"`)
}

func TestNestedFunctionNameVisible(t *testing.T) {
	diags := checkBatch(t, `
def f():
    def helper():
        return helper
    return helper()
`)
	wantClean(t, diags)
}

func TestSkipDecoratorOnNestedFunction(t *testing.T) {
	diags := checkBatch(t, `
def f():
    @no_block_scoping
    def legacy():
        return whatever
    return 1
`)
	wantClean(t, diags)
}

func TestMatchStatementIgnored(t *testing.T) {
	diags := checkBatch(t, `
def f(cmd):
    match cmd:
        case [action, obj]:
            print(action, obj)
`)
	wantClean(t, diags)
}

func TestStrictModeStopsAtFirstFinding(t *testing.T) {
	root, source := parseRoot(t, `
def f():
    print(a)
    print(b)
`)
	fn := firstOfKind(root, "function_definition")
	c := NewChecker(source, Options{FuncName: "f"})
	err := c.Check(fn)

	var checkErr *CheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected *CheckError, got %v", err)
	}
	if !strings.Contains(checkErr.Diagnostic.Message, `"a"`) {
		t.Errorf("strict mode should stop at the first finding, got %s", checkErr.Diagnostic.Message)
	}
	if checkErr.Diagnostic.Unit != "f" {
		t.Errorf("strict diagnostic unit should be the function name, got %q", checkErr.Diagnostic.Unit)
	}
	if len(c.Diagnostics()) != 1 {
		t.Errorf("expected exactly one collected diagnostic, got %d", len(c.Diagnostics()))
	}
}

func TestBatchModeCollectsEverything(t *testing.T) {
	diags := checkBatch(t, `
def f():
    print(a)
    print(b)
`)
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(diags), diags)
	}
	wantFinding(t, diags, `"a"`)
	wantFinding(t, diags, `"b"`)
}

func TestDiagnosticLineNumbers(t *testing.T) {
	diags := checkBatch(t, `
def f():
    x = 1
    print(missing)
`)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Line != 4 {
		t.Errorf("expected finding on line 4, got %d", diags[0].Line)
	}
	if diags[0].Unit != "test.py" {
		t.Errorf("batch diagnostic unit should be the file, got %q", diags[0].Unit)
	}
}

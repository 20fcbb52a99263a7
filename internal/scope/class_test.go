// # internal/scope/class_test.go
package scope

import (
	"testing"
)

func analyzeClass(t *testing.T, src string, globals ...string) []Diagnostic {
	t.Helper()
	root, source := parseRoot(t, src)
	class := firstOfKind(root, "class_definition")
	if class == nil {
		t.Fatal("no class definition in source")
	}
	diags, err := AnalyzeClass(class, source, globals, "test.py", Conventions{})
	if err != nil {
		t.Fatalf("batch class analysis returned error: %v", err)
	}
	return diags
}

func TestConstructorAttributesVisibleInMethods(t *testing.T) {
	diags := analyzeClass(t, `
class Wallet:
    def __init__(self, balance):
        self.balance = balance

    def spend(self, amount):
        self.balance -= amount
`)
	wantClean(t, diags)
}

func TestUnknownAttributeReported(t *testing.T) {
	diags := analyzeClass(t, `
class Wallet:
    def __init__(self):
        self.balance = 0

    def spend(self, amount):
        self.ballance -= amount
`)
	wantFinding(t, diags, `"self.ballance"`)
}

func TestClassVariableVisibleBothWays(t *testing.T) {
	diags := analyzeClass(t, `
class Limits:
    MAX = 100

    def check(self, n):
        return n < MAX and n < self.MAX
`)
	wantClean(t, diags)
}

func TestMethodsVisibleThroughReceiver(t *testing.T) {
	diags := analyzeClass(t, `
class Worker:
    def run(self):
        self.step()

    def step(self):
        pass
`)
	wantClean(t, diags)
}

func TestSubclassDisablesAttributeCheck(t *testing.T) {
	diags := analyzeClass(t, `
class Child(Base):
    def use(self):
        return self.inherited
`, "Base")
	wantClean(t, diags)
}

func TestConstructorDelegationWidensAttributes(t *testing.T) {
	diags := analyzeClass(t, `
class Server:
    def __init__(self):
        self.configure()

    def configure(self):
        self.port = 8080

    def start(self):
        return self.port
`)
	wantClean(t, diags)
}

func TestNoDelegationKeepsAttributesNarrow(t *testing.T) {
	diags := analyzeClass(t, `
class Server:
    def __init__(self):
        self.host = "localhost"

    def configure(self):
        self.port = 8080

    def start(self):
        return self.port
`)
	// configure is never reachable from the constructor.
	wantFinding(t, diags, `"self.port"`)
}

func TestConstructorBodyCheckedForLocals(t *testing.T) {
	diags := analyzeClass(t, `
class Job:
    def __init__(self):
        self.name = title
`)
	wantFinding(t, diags, `"title"`)
}

func TestConstructorSkipsAttributeChecks(t *testing.T) {
	diags := analyzeClass(t, `
class Job:
    def __init__(self, name):
        self.log(name)
        self.name = name

    def log(self, msg):
        print(msg)
`)
	wantClean(t, diags)
}

func TestClassStrictMode(t *testing.T) {
	root, source := parseRoot(t, `
class Bad:
    def m(self):
        return missing
`)
	class := firstOfKind(root, "class_definition")
	diags, err := AnalyzeClass(class, source, nil, "", Conventions{})
	if err == nil {
		t.Fatal("expected strict mode to return the first finding")
	}
	if len(diags) != 1 {
		t.Errorf("expected one diagnostic before aborting, got %d", len(diags))
	}
}

func TestDecoratedMethodSkipMarker(t *testing.T) {
	diags := analyzeClass(t, `
class Mixed:
    def good(self):
        return 1

    @no_block_scoping
    def legacy(self):
        return missing
`)
	wantClean(t, diags)
}

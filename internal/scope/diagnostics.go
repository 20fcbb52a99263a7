// # internal/scope/diagnostics.go
package scope

import "fmt"

// Diagnostic is a single scoping finding. Unit is the file path in batch
// mode, or the function name in strict mode. Immutable once created.
type Diagnostic struct {
	Unit    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("block scoping issue around line %d of %s: %s", d.Line, d.Unit, d.Message)
}

// CheckError is how strict mode surfaces the first diagnostic.
type CheckError struct {
	Diagnostic Diagnostic
}

func (e *CheckError) Error() string {
	return e.Diagnostic.String()
}

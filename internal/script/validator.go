// Package script runs untrusted user Go fragments against a chunk's
// fields: a static validator rejects anything resembling process
// control, networking, reflection, or concurrency; an admitted script
// is handed to a sandboxed child process for evaluation.
package script

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"
)

// Violation is one rejected construct found by Validate.
type Violation struct {
	Rule   string
	Detail string
}

func (v Violation) String() string { return v.Rule + ": " + v.Detail }

// deniedImports lists package import paths a script may never name. A
// trailing "/" entry denies the whole subtree (debug/*).
var deniedImports = []string{
	"os", "os/exec", "os/user", "syscall", "net", "net/http", "net/smtp",
	"net/rpc", "plugin", "unsafe", "reflect", "runtime", "runtime/debug",
	"io/fs", "debug/",
}

// deniedSelectors maps a package identifier to the specific calls on it
// that are rejected even if the import check is somehow bypassed (a
// renamed import, or a symbol reached through the preamble).
var deniedSelectors = map[string]map[string]bool{
	"os":      {"Exit": true, "Create": true, "OpenFile": true, "Remove": true},
	"exec":    {"Command": true, "CommandContext": true},
	"syscall": {"Exec": true, "Kill": true, "Syscall": true},
	"unsafe":  {"Pointer": true},
	"reflect": {"ValueOf": true, "TypeOf": true},
	"plugin":  {"Open": true},
}

// deniedTokens backstops the AST walk with a plain-text scan over the
// raw (unwrapped) script source, so a construct the walker does not yet
// model cannot slip through.
var deniedTokens = regexp.MustCompile(
	`\b(os\.Exit|exec\.Command|exec\.CommandContext|syscall\.\w+|unsafe\.Pointer|reflect\.\w+|plugin\.Open)\b`,
)

// Validate parses and walks the wrapped form of source, returning every
// violation found. An empty slice means the script is admissible.
func Validate(source string) ([]Violation, error) {
	wrapped := wrap(source)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "script.go", wrapped, parser.AllErrors)
	if err != nil {
		// An import declaration cannot parse inside the wrapped function
		// body; one naming a denied package is reported as a violation.
		var denied []Violation
		importDecl := regexp.MustCompile(`(?m)^\s*import\s+(?:[\w.]+\s+)?"?([\w./-]+)"?`)
		for _, m := range importDecl.FindAllStringSubmatch(source, -1) {
			if deniedImportPath(m[1]) {
				denied = append(denied, Violation{Rule: "denied_import", Detail: m[1]})
			}
		}
		if len(denied) > 0 {
			return denied, nil
		}
		return nil, fmt.Errorf("script: parse error: %w", err)
	}

	var violations []Violation

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if deniedImportPath(path) {
			violations = append(violations, Violation{Rule: "denied_import", Detail: path})
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.GoStmt:
			violations = append(violations, Violation{Rule: "goroutine", Detail: "go statements are not permitted"})
		case *ast.SendStmt:
			violations = append(violations, Violation{Rule: "channel_send", Detail: "channel operations are not permitted"})
		case *ast.ChanType:
			violations = append(violations, Violation{Rule: "channel_type", Detail: "channel types are not permitted"})
		case *ast.CallExpr:
			if sel, ok := node.Fun.(*ast.SelectorExpr); ok {
				if pkg, ok := sel.X.(*ast.Ident); ok {
					if methods, known := deniedSelectors[pkg.Name]; known && methods[sel.Sel.Name] {
						violations = append(violations, Violation{
							Rule:   "denied_call",
							Detail: pkg.Name + "." + sel.Sel.Name,
						})
					}
				}
			}
		}
		return true
	})

	for _, m := range deniedTokens.FindAllString(source, -1) {
		violations = append(violations, Violation{Rule: "denied_token", Detail: m})
	}

	return violations, nil
}

func deniedImportPath(path string) bool {
	for _, d := range deniedImports {
		if strings.HasSuffix(d, "/") {
			if strings.HasPrefix(path, d) {
				return true
			}
			continue
		}
		if path == d {
			return true
		}
	}
	return false
}

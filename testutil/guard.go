// Package testutil provides helpers for enforcing package layering rules in
// tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "datatree"

// Within returns a predicate matching prefix and every package below it.
func Within(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// SourceImportForbidden matches the source implementations. The engine and
// the infrastructure it builds on must not depend on any of them.
var SourceImportForbidden = Within(ModulePath + "/internal/sources")

// CommandImportForbidden matches the command packages.
var CommandImportForbidden = Within(ModulePath + "/cmd")

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "direct imports", reason, viols)
}

// AssertNoPackageImports loads the packages matching pattern, skips those
// matching exempt, and fails if any remaining package imports a path
// satisfying forbidden.
func AssertNoPackageImports(t testing.TB, pattern string, exempt, forbidden func(string) bool, reason string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if exempt != nil && exempt(pkg.PkgPath) {
			continue
		}
		for importPath := range pkg.Imports {
			if forbidden(importPath) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	viols := make([]string, 0, len(seen))
	for v := range seen {
		viols = append(viols, v)
	}
	sort.Strings(viols)
	failIfViolations(t, "package imports", reason, viols)
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}

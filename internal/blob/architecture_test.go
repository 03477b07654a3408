package blob

import (
	"strings"
	"testing"

	"datatree/testutil"
)

// Only this package may wrap the driver implementations; everything else
// depends on the Store interface.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	infra := testutil.Within(testutil.ModulePath + "/internal/infra/blob")
	exempt := func(pkg string) bool {
		pkg = strings.TrimSuffix(pkg, ".test")
		return testutil.Within(testutil.ModulePath+"/internal/blob")(pkg) || infra(pkg)
	}
	testutil.AssertNoPackageImports(t, testutil.ModulePath+"/...", exempt, infra, "use blob.Store instead of driver packages")
}

// Integration tests for the planner CLI using testscript, grounded on the
// teacher's cli/cli_test.go TestMain/TestScripts harness.
package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/makerpnp/planner/internal/cli"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"planner": func() {
			rootCmd := cli.NewRootCmd()
			if err := rootCmd.Execute(); err != nil {
				rootCmd.PrintErrln("Error:", err)
				os.Exit(1)
			}
		},
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}

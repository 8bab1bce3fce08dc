// Package cli provides shared test utilities for CLI testing with cobra commands.
//
// # Basic Usage
//
// Execute a command and check output:
//
//	result := cli.Run(myCmd, "--help")
//	result.AssertSuccess(t)
//	result.AssertContains(t, "Usage:")
//
// Stdout and stderr are captured separately; decision logs written to stderr
// never pollute machine-readable output:
//
//	result := cli.Run(rootCmd, "evaluate", "identity:rick", "GET", "route:/admin", "-o", "json")
//	var resp authzen.EvaluationResponse
//	result.DecodeJSON(t, &resp)
//
// # Config Files
//
// WriteConfigFile writes a file into a per-test temp directory and returns its path:
//
//	path := cli.WriteConfigFile(t, "pdp.yaml", "policy_store_id: ./policies")
//
// # Exit Codes
//
// AssertExitCode checks the code main would exit with for the returned error:
//
//	result := cli.Run(rootCmd, "evaluate", "identity:rick", "GET")
//	result.AssertExitCode(t, clierror.ExitUsage)
package cli

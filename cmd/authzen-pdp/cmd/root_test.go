package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/testutil/cli"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/version"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/clierror"
)

// Tests in this package cannot run in parallel: flag values live in package
// variables shared by every command tree.

var (
	todoDir      = filepath.Join("..", "..", "..", "pkg", "testdata", "todo")
	todoPolicies = filepath.Join(todoDir, "policies")
)

// run executes a fresh command tree against the todo fixtures.
func run(args ...string) *cli.CommandResult {
	base := []string{"--policies", todoPolicies, "--entities", todoDir, "--log-level", "warn"}
	return cli.Run(newRootCmd(), append(args, base...)...)
}

func TestRootCmd_HelpShowsSubcommands(t *testing.T) {
	t.Log("Verifying help output shows available subcommands")

	result := cli.Run(newRootCmd(), "--help")
	result.AssertSuccess(t)
	for _, sub := range []string{"serve", "evaluate", "search", "entities", "version", "completion"} {
		result.AssertContains(t, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Log("Verifying version command prints the build version")

	result := cli.Run(newRootCmd(), "version")
	result.AssertSuccess(t)
	result.AssertPrefix(t, "authzen-pdp version "+version.String())
}

func TestEvaluateCommand_Table(t *testing.T) {
	t.Log("Verifying evaluate prints the decision and determining policies")

	result := run("evaluate", "identity:rick", "GET", "route:/admin")
	result.AssertSuccess(t)
	result.AssertContains(t, "ALLOW")
	result.AssertContains(t, "GET-admin.cedar")

	result = run("evaluate", "identity:beth", "DELETE", "route:/todos/{todoId}")
	result.AssertSuccess(t)
	result.AssertContains(t, "DENY")
	result.AssertNotContains(t, "policy:")
}

func TestEvaluateCommand_JSON(t *testing.T) {
	t.Log("Verifying -o json writes the AuthZEN response only")

	result := run("evaluate", "identity:morty", "GET", "route:/todos", "-o", "json")
	result.AssertSuccess(t)
	var resp authzen.EvaluationResponse
	result.DecodeJSON(t, &resp)
	assert.True(t, resp.Decision)
	assert.Equal(t, "GET-todos.cedar", resp.Context.ReasonAdmin["0"])
}

func TestEvaluateCommand_YAML(t *testing.T) {
	t.Log("Verifying -o yaml keeps the JSON field names")

	result := run("evaluate", "identity:morty", "GET", "route:/todos", "-o", "yaml")
	result.AssertSuccess(t)
	result.AssertContains(t, "decision: true")
	result.AssertContains(t, "reason_admin:")
}

func TestEvaluateCommand_Batch(t *testing.T) {
	t.Log("Verifying --batch applies evaluation semantics")

	path := cli.WriteConfigFile(t, "batch.json", `{
		"subject": {"type": "identity", "id": "morty"},
		"options": {"evaluation_semantics": "deny_on_first_deny"},
		"evaluations": [
			{"action": {"name": "POST"}, "resource": {"type": "route", "id": "/todos"}},
			{"action": {"name": "DELETE"}, "resource": {"type": "route", "id": "/todos/{todoId}"}},
			{"action": {"name": "GET"}, "resource": {"type": "route", "id": "/todos"}}
		]
	}`)

	result := run("evaluate", "--batch", path)
	result.AssertSuccess(t)
	result.AssertContains(t, "[0] ALLOW")
	result.AssertContains(t, "[1] DENY")
	result.AssertNotContains(t, "[2]")
	result.AssertContains(t, "stopped after 2 of 3 (deny_on_first_deny)")
}

func TestEvaluateCommand_BadArguments(t *testing.T) {
	t.Log("Verifying argument errors are reported")

	result := run("evaluate", "rick", "GET", "route:/admin")
	result.AssertErrorContains(t, "must be written as type:id")

	result = run("evaluate", "identity:rick", "GET")
	result.AssertErrorContains(t, "requires 3 argument(s), received 2")

	result = run("evaluate", "identity:rick", "GET", "route:/admin", "--context", "[1]")
	result.AssertErrorContains(t, "--context must be a JSON object")

	result = run("evaluate", "identity:rick", "GET", "route:/admin", "-o", "xml")
	result.AssertErrorContains(t, "unknown output format")
}

func TestSearchCommands(t *testing.T) {
	t.Log("Verifying the three search subcommands")

	result := run("search", "subject", "identity", "GET", "route:/admin")
	result.AssertSuccess(t)
	result.AssertContains(t, "rick")
	result.AssertNotContains(t, "morty")

	result = run("search", "resource", "identity:morty", "GET", "route", "-o", "json")
	result.AssertSuccess(t)
	var resp authzen.SearchResponse
	result.DecodeJSON(t, &resp)
	assert.Equal(t, []authzen.Entity{
		{Type: "route", ID: "/todos"},
		{Type: "route", ID: "/users/{userId}"},
	}, resp.Results)

	result = run("search", "action", "identity:rick", "route:/todos")
	result.AssertSuccess(t)
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	assert.Equal(t, []string{"ACTION", "GET", "POST"}, lines)
}

func TestEntitiesCommands_SQLite(t *testing.T) {
	t.Log("Verifying entities load and scan against SQLite")

	db := "sqlite://" + filepath.Join(t.TempDir(), "entities.db")
	file := filepath.Join(todoDir, "cedarentities.json")

	result := cli.Run(newRootCmd(), "entities", "load", file, "--policies", todoPolicies, "--entities", db, "--log-level", "warn")
	result.AssertSuccess(t)
	result.AssertContains(t, "Loaded")

	result = cli.Run(newRootCmd(), "entities", "scan", "identity", "--policies", todoPolicies, "--entities", db, "-o", "json")
	result.AssertSuccess(t)
	var ids []string
	result.DecodeJSON(t, &ids)
	assert.Equal(t, []string{"rick", "morty", "summer", "beth", "jerry"}, ids)

	result = cli.Run(newRootCmd(), "evaluate", "identity:rick", "GET", "route:/admin", "--policies", todoPolicies, "--entities", db)
	result.AssertSuccess(t)
	result.AssertContains(t, "ALLOW")
}

func TestEntitiesLoad_ReadOnlyProvider(t *testing.T) {
	t.Log("Verifying a file-backed provider cannot be loaded into")

	result := run("entities", "load", filepath.Join(todoDir, "cedarentities.json"))
	result.AssertErrorContains(t, "is not a writable store")
	assert.Equal(t, clierror.CodeReadOnlyStore, clierror.FromError(result.Err).Code)
}

func TestConfigFile(t *testing.T) {
	t.Log("Verifying --config supplies the policy store and entities")

	abs, err := filepath.Abs(todoDir)
	require.NoError(t, err)
	path := cli.WriteConfigFile(t, "pdp.yaml",
		"policy_store_id: "+filepath.Join(abs, "policies")+"\nentities: "+abs+"\nlog:\n  level: error\n")

	result := cli.Run(newRootCmd(), "evaluate", "identity:jerry", "GET", "route:/reports", "--config", path)
	result.AssertSuccess(t)
	result.AssertContains(t, "DENY")
	result.AssertContains(t, "reports.cedar#1")
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Log("Verifying serve refuses to start without a policy store")

	result := cli.Run(newRootCmd(), "serve", "--log-level", "shout", "--policies", todoPolicies)
	result.AssertErrorContains(t, "invalid configuration")
	result.AssertExitCode(t, clierror.ExitUsage)
}

func TestErrorExitCodes(t *testing.T) {
	t.Log("Verifying command errors map to CLI exit codes")

	run("evaluate", "identity:rick", "GET").AssertExitCode(t, clierror.ExitUsage)
	run("evaluate", "identity:rick", "GET", "route:/admin", "-o", "xml").AssertExitCode(t, clierror.ExitGeneral)

	// No entity store configured.
	cli.Run(newRootCmd(), "search", "subject", "identity", "GET", "route:/admin", "--policies", todoPolicies).
		AssertExitCode(t, clierror.ExitUnsupported)
}

func TestExtractArgNames(t *testing.T) {
	tests := []struct {
		use  string
		want []string
	}{
		{"evaluate <subject> <action> <resource>", []string{"<subject>", "<action>", "<resource>"}},
		{"completion [bash|zsh|fish|powershell]", []string{"[bash|zsh|fish|powershell]"}},
		{"version", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArgNames(tt.use), tt.use)
	}
}

func TestParseEntity(t *testing.T) {
	e, err := parseEntity("route:/todos/{todoId}")
	require.NoError(t, err)
	assert.Equal(t, authzen.Entity{Type: "route", ID: "/todos/{todoId}"}, e)

	e, err = parseEntity("urn:acme:user")
	require.NoError(t, err)
	assert.Equal(t, authzen.Entity{Type: "urn", ID: "acme:user"}, e)

	for _, bad := range []string{"rick", ":rick", "identity:"} {
		_, err := parseEntity(bad)
		assert.Error(t, err, bad)
	}
}

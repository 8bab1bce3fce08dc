package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/clierror"
)

func TestRun_CapturesStdoutAndStderr(t *testing.T) {
	t.Parallel()
	t.Log("Testing that Run captures stdout and stderr separately")

	cmd := &cobra.Command{
		Use: "test",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(`{"decision": true}`)
			cmd.PrintErrln("level=INFO msg=\"authorization decision\"")
		},
	}

	result := Run(cmd)
	result.AssertSuccess(t)

	if result.Stdout != "{\"decision\": true}\n" {
		t.Errorf("unexpected stdout %q", result.Stdout)
	}
	result.AssertStderrContains(t, "authorization decision")
	result.AssertNotContains(t, "authorization decision")
}

func TestRun_CapturesError(t *testing.T) {
	t.Parallel()
	t.Log("Testing that Run captures command errors")

	cmd := &cobra.Command{
		Use:           "test",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("engine unavailable")
		},
	}

	result := Run(cmd)
	result.AssertErrorContains(t, "engine unavailable")
}

func TestAssertExitCode(t *testing.T) {
	t.Parallel()
	t.Log("Testing that AssertExitCode maps errors through clierror")

	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return clierror.Usage("unexpected argument %q", args[0])
			}
			return nil
		},
	}

	Run(cmd).AssertExitCode(t, clierror.ExitSuccess)

	result := Run(cmd, "extra")
	result.AssertErrorContains(t, `unexpected argument "extra"`)
	result.AssertExitCode(t, clierror.ExitUsage)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	t.Log("Testing that DecodeJSON unmarshals stdout")

	result := &CommandResult{Stdout: `{"results": [{"name": "GET"}]}`}
	var got struct {
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
	result.DecodeJSON(t, &got)

	if len(got.Results) != 1 || got.Results[0].Name != "GET" {
		t.Errorf("unexpected decode result %+v", got)
	}
}

func TestWriteConfigFile_WritesFile(t *testing.T) {
	t.Parallel()
	t.Log("Testing that WriteConfigFile writes a 0600 file in a temp dir")

	path := WriteConfigFile(t, "pdp.yaml", "policy_store_id: ./policies\n")
	if filepath.Base(path) != "pdp.yaml" {
		t.Errorf("unexpected path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(data) != "policy_store_id: ./policies\n" {
		t.Errorf("unexpected content %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat config file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
	}
}

func TestRun_WithSubcommandsAndFlags(t *testing.T) {
	t.Parallel()
	t.Log("Testing that Run works with subcommands and flags")

	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().StringP("output", "o", "table", "output format")
	sub := &cobra.Command{
		Use: "sub",
		Run: func(cmd *cobra.Command, args []string) {
			out, _ := cmd.Flags().GetString("output")
			cmd.Println("output=" + out)
		},
	}
	root.AddCommand(sub)

	result := Run(root, "sub", "-o", "json")
	result.AssertSuccess(t)
	result.AssertContains(t, "output=json")
}

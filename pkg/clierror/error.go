package clierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess          = 0 // Operation completed successfully
	ExitGeneral          = 1 // Unknown/unhandled error
	ExitUsage            = 2 // Bad arguments, request or configuration
	ExitEntityResolution = 3 // Entity store unreachable or failing
	ExitEvaluation       = 4 // Decision engine call failed
	ExitUnsupported      = 5 // Operation not available for this backend
)

// Error codes (strings) for programmatic error handling
const (
	CodeUsage                = "USAGE"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeReadOnlyStore        = "READ_ONLY_STORE"
	CodeEntityResolution     = "ENTITY_RESOLUTION_FAILED"
	CodeEvaluationFailed     = "EVALUATION_FAILED"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeGeneral              = "ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// Usage creates an error for malformed command-line arguments.
func Usage(format string, args ...any) *CLIError {
	return &CLIError{
		Code:     CodeUsage,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: ExitUsage,
	}
}

// InvalidConfig creates an error for configuration that failed validation.
func InvalidConfig(err error) *CLIError {
	return &CLIError{
		Code:     CodeInvalidConfig,
		Message:  fmt.Sprintf("invalid configuration: %v", err),
		Hint:     "Check --config, POLICY_STORE_ID and ENTITIES_TABLE_NAME",
		ExitCode: ExitUsage,
		Err:      err,
	}
}

// ReadOnlyStore creates an error when entities cannot be written to target.
func ReadOnlyStore(target string) *CLIError {
	return &CLIError{
		Code:     CodeReadOnlyStore,
		Message:  fmt.Sprintf("entities %q is not a writable store", target),
		Hint:     "Use sqlite://<path>, redis://<addr> or a DynamoDB table name",
		ExitCode: ExitUsage,
	}
}

// FromError converts err into a CLIError. A CLIError anywhere in the chain
// is returned as is. AuthZEN errors map to their dedicated exit codes.
func FromError(err error) *CLIError {
	if err == nil {
		return nil
	}
	var cerr *CLIError
	if errors.As(err, &cerr) {
		return cerr
	}

	out := &CLIError{Code: CodeGeneral, Message: err.Error(), ExitCode: ExitGeneral, Err: err}
	switch authzen.ErrorCode(err) {
	case authzen.CodeValidation:
		out.Code, out.ExitCode = CodeInvalidRequest, ExitUsage
	case authzen.CodeEntityResolution:
		out.Code, out.ExitCode, out.Retryable = CodeEntityResolution, ExitEntityResolution, true
		out.Hint = "Check that the entity store is reachable and the credentials are valid"
	case authzen.CodeEvaluationFailed:
		out.Code, out.ExitCode, out.Retryable = CodeEvaluationFailed, ExitEvaluation, true
		out.Hint = "Check the policy store id and the AWS region"
	case authzen.CodeUnsupportedOperation:
		out.Code, out.ExitCode = CodeUnsupportedOperation, ExitUnsupported
		out.Hint = "Search needs an entity store that can enumerate entities"
	}
	return out
}

// FormatError returns the error formatted for the given output format.
// "json" gives JSON; anything else gives the human-readable form.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":%q,"message":%q}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError writes the error to w in the appropriate format.
func PrintError(w io.Writer, err *CLIError, outputFormat string) {
	fmt.Fprintln(w, FormatError(err, outputFormat))
}

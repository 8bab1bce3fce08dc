// Package clierror provides structured error handling for CLI commands.
//
// CLI errors include an exit code, user-facing message, and optional
// troubleshooting hints. FromError maps AuthZEN errors to their exit
// codes so scripts can tell a bad request from a store outage.
//
// # Usage
//
//	if err != nil {
//	    return clierror.InvalidConfig(err)
//	}
package clierror

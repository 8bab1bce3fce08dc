// AuthZEN policy decision point backed by Cedar
package main

import (
	"os"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/cmd/authzen-pdp/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

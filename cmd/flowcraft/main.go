// Command flowcraft serves the flowchart API, runs the MCP server and
// validates or renders flowchart documents from the command line.
package main

import (
	"fmt"
	"os"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/flowcraft/
var version = "dev"

const usage = `usage: flowcraft <command> [flags]

commands:
  serve      run the HTTP API (default)
  mcp        run the MCP server on stdio
  validate   validate a flowchart document file
  render     render a flowchart document file
  install    write ~/.flowcraft/settings.json
  version    print the version
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var code int
	switch cmd {
	case "serve":
		code = runServe(args)
	case "mcp":
		code = runMCP(args)
	case "validate":
		code = runValidate(args, os.Stdout)
	case "render":
		code = runRender(args, os.Stdout)
	case "install":
		code = runInstall(args)
	case "version", "-v", "--version":
		fmt.Println("flowcraft", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		code = 2
	}
	os.Exit(code)
}

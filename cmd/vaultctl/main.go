package main

import (
	"fmt"
	"io"
	"os"
)

const defaultRPCURL = "http://127.0.0.1:8545"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygenCommand(args[1:], stdout, stderr)
	case "address":
		return runAddressCommand(args[1:], stdout, stderr)
	case "sign":
		return runSignCommand(args[1:], stdout, stderr)
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: vaultctl <command> [flags]

Commands:
  keygen   Generate a new encrypted keystore
  address  Print the address held by a keystore
  sign     Sign a vault call and optionally submit it
  token    Issue an API bearer token`
}

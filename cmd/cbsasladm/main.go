// Command cbsasladm manages the local SASL password database: converting
// the flat bootstrap format to the canonical JSON schema, and minting or
// checking an Argon2id bootstrap secret hash. No subcommand requires the
// secret before it runs.
package main

import (
	"flag"
	"fmt"
	"os"

	sasl "github.com/memdsasl/mcsasl"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cbsasladm [-i iterations] <command> [args]

Commands:
  pwconv <input> <output>       convert a flat password file to JSON
  hash-secret <secret>          print an Argon2id PHC hash of secret
  verify-secret <secret> <hash> exit 0 if secret matches hash
`)
	os.Exit(2)
}

func main() {
	iterations := flag.Int("i", int(sasl.DefaultIterationCount), "default PBKDF2 iteration count for new users")
	flag.Usage = usage
	flag.Parse()

	sasl.SetDefaultIterationCount(int32(*iterations))

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	var err error
	switch args[0] {
	case "pwconv":
		err = runPwconv(args[1:])
	case "hash-secret":
		err = runHashSecret(args[1:])
	case "verify-secret":
		err = runVerifySecret(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runPwconv(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: pwconv <input> <output>")
	}
	flat, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	jsonDoc, err := sasl.Convert(flat)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], jsonDoc, 0o600)
}

func runHashSecret(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hash-secret <secret>")
	}
	hash, err := sasl.HashAdminSecret(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runVerifySecret(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: verify-secret <secret> <hash>")
	}
	return sasl.VerifyAdminSecret(args[0], args[1])
}

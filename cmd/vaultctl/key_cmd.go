package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"nhbvault/cmd/internal/passphrase"
	"nhbvault/crypto"
)

const passphraseEnv = "VAULTCTL_PASSPHRASE"

var newPassphraseSource = func() *passphrase.Source {
	return passphrase.NewSource(passphraseEnv, passphrase.AllowEmpty())
}

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	var force bool
	fs.StringVar(&out, "out", "", "path of the keystore to create")
	fs.BoolVar(&force, "force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	if _, err := os.Stat(out); err == nil {
		if !force {
			fmt.Fprintf(stderr, "Error: %s already exists; pass --force to overwrite\n", out)
			return 1
		}
		if err := os.Remove(out); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	pass, err := newPassphraseSource().Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: write keystore: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddressCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "keystore", "", "path to the keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, code := loadKey(path, stderr)
	if key == nil {
		return code
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func loadKey(path string, stderr io.Writer) (*crypto.PrivateKey, int) {
	path = strings.TrimSpace(path)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return nil, 1
	}
	pass, err := newPassphraseSource().Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 1
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 1
	}
	return key, 0
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nhbvault/rpc"
)

const secretEnv = "VAULTCTL_HMAC_SECRET"

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var secret, issuer, audience, subject, scopes string
	var ttl time.Duration
	fs.StringVar(&secret, "secret", "", "HMAC secret (defaults to $"+secretEnv+")")
	fs.StringVar(&issuer, "issuer", "", "iss claim")
	fs.StringVar(&audience, "audience", "", "aud claim")
	fs.StringVar(&subject, "subject", "", "sub claim")
	fs.StringVar(&scopes, "scopes", rpc.ScopeRead, "comma separated scopes")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if secret == "" {
		secret = os.Getenv(secretEnv)
	}
	if strings.TrimSpace(subject) == "" {
		fmt.Fprintln(stderr, "Error: --subject is required")
		return 1
	}
	if ttl <= 0 {
		fmt.Fprintln(stderr, "Error: --ttl must be positive")
		return 1
	}
	var list []string
	for _, scope := range strings.Split(scopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			list = append(list, scope)
		}
	}
	token, err := rpc.IssueToken(strings.TrimSpace(secret), issuer, audience, strings.TrimSpace(subject), list, ttl, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"nhbvault/core/types"
)

const tokenEnv = "VAULTCTL_TOKEN"

var httpClient = &http.Client{Timeout: 15 * time.Second}

func runSignCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		keystore, method, value, amount, paused, admin string
		nonce                                          int64
		submit                                         bool
		rpcURL, token                                  string
	)
	fs.StringVar(&keystore, "keystore", "", "path to the signing keystore")
	fs.StringVar(&method, "method", "", "vault method to call")
	fs.Int64Var(&nonce, "nonce", -1, "call nonce; fetched from the daemon when submitting and omitted")
	fs.StringVar(&value, "value", "", "native value attached to the call")
	fs.StringVar(&amount, "amount", "", "amount argument")
	fs.StringVar(&paused, "paused", "", "pause flag for setPaused (true|false)")
	fs.StringVar(&admin, "admin", "", "new administrator for transferAdmin")
	fs.BoolVar(&submit, "submit", false, "post the signed call to the daemon")
	fs.StringVar(&rpcURL, "rpc", defaultRPCURL, "daemon base URL")
	fs.StringVar(&token, "token", "", "bearer token (defaults to $"+tokenEnv+")")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	method = strings.TrimSpace(method)
	if method == "" {
		fmt.Fprintln(stderr, "Error: --method is required")
		return 1
	}
	if nonce < 0 && !submit {
		fmt.Fprintln(stderr, "Error: --nonce is required unless --submit is set")
		return 1
	}
	call := &types.Call{
		Method: method,
		Value:  strings.TrimSpace(value),
		Amount: strings.TrimSpace(amount),
		Admin:  strings.TrimSpace(admin),
	}
	if strings.TrimSpace(paused) != "" {
		p, err := strconv.ParseBool(strings.TrimSpace(paused))
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid --paused: %v\n", err)
			return 1
		}
		call.Paused = &p
	}

	key, code := loadKey(keystore, stderr)
	if key == nil {
		return code
	}
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	client := &vaultClient{base: strings.TrimRight(rpcURL, "/"), token: strings.TrimSpace(token), http: httpClient}

	if nonce >= 0 {
		call.Nonce = uint64(nonce)
	} else {
		next, err := client.nextNonce(key.PubKey().Address().String())
		if err != nil {
			fmt.Fprintf(stderr, "Error: fetch nonce: %v\n", err)
			return 1
		}
		call.Nonce = next
	}
	if err := call.Sign(key); err != nil {
		fmt.Fprintf(stderr, "Error: sign call: %v\n", err)
		return 1
	}

	if !submit {
		return printJSON(stdout, stderr, call)
	}
	result, err := client.submit(call)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, result)
}

func printJSON(stdout, stderr io.Writer, v any) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: encode output: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}

type vaultClient struct {
	base  string
	token string
	http  *http.Client
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *vaultClient) nextNonce(address string) (uint64, error) {
	var out struct {
		Next uint64 `json:"next"`
	}
	if err := c.do(http.MethodGet, "/v1/nonces/"+address, nil, &out); err != nil {
		return 0, err
	}
	return out.Next, nil
}

func (c *vaultClient) submit(call *types.Call) (json.RawMessage, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(http.MethodPost, "/v1/call", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vaultClient) do(method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s, HTTP %d)", apiErr.Error, apiErr.Code, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(payload, out)
}

// Command daogov-cli is the operator command-line client for daogovd: it
// mints admin bearer tokens and submits mutate requests against a running
// daemon's query and admin HTTP APIs.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"daogov/api/adminapi"
	"daogov/cmd/internal/passphrase"
	"daogov/crypto"
)

const defaultAdminEndpoint = "http://127.0.0.1:7011"
const defaultQueryEndpoint = "http://127.0.0.1:7010"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "token":
		issueToken(os.Args[2:])
	case "generate-key":
		generateKey(os.Args[2:])
	case "show-address":
		showAddress(os.Args[2:])
	case "fge-create-poll":
		fgeCreatePoll(os.Args[2:])
	case "fge-vote":
		fgeCastVote(os.Args[2:])
	case "fge-end-poll":
		fgeEndPoll(os.Args[2:])
	case "nge-create-poll":
		ngeCreatePoll(os.Args[2:])
	case "nge-vote":
		ngeCastVote(os.Args[2:])
	case "query":
		query(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`daogov-cli <command> [args]

Commands:
  token <secret-hex> <subject>                       mint an admin bearer token
  generate-key <keystore-path>                       create and save a new signing key
  show-address <keystore-path>                       decrypt a keystore and print its address
  fge-create-poll <token> <sender> <amount> <title> <description> <link>
  fge-vote <token> <poll-id> <sender> <vote:yes|no> <amount>
  fge-end-poll <token> <poll-id>
  nge-create-poll <token> <sender-id> <title> <description> <link>
  nge-vote <token> <poll-id> <voter-id> <vote:yes|no>
  query <path>                                       GET a query-API path, e.g. /v1/fge/state`)
}

func generateKey(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: daogov-cli generate-key <keystore-path>")
		os.Exit(1)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fatal("generate key", err)
	}
	pass := passphrase.NewSource("DAOGOV_KEYSTORE_PASSPHRASE")
	secret, err := pass.Get()
	if err != nil {
		fatal("read passphrase", err)
	}
	if err := crypto.SaveToKeystore(args[0], key, secret); err != nil {
		fatal("save keystore", err)
	}
	fmt.Printf("address: %s\n", key.PubKey().Address().String())
}

func showAddress(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: daogov-cli show-address <keystore-path>")
		os.Exit(1)
	}
	pass := passphrase.NewSource("DAOGOV_KEYSTORE_PASSPHRASE")
	secret, err := pass.Get()
	if err != nil {
		fatal("read passphrase", err)
	}
	key, err := crypto.LoadFromKeystore(args[0], secret)
	if err != nil {
		fatal("load keystore", err)
	}
	fmt.Printf("address: %s\n", key.PubKey().Address().String())
}

func issueToken(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: daogov-cli token <secret-hex> <subject>")
		os.Exit(1)
	}
	secret, err := hex.DecodeString(args[0])
	if err != nil {
		fatal("decode secret", err)
	}
	token, err := adminapi.IssueToken(secret, "daogovd", args[1], time.Hour)
	if err != nil {
		fatal("issue token", err)
	}
	fmt.Println(token)
}

func fgeCreatePoll(args []string) {
	if len(args) < 6 {
		fmt.Println("usage: daogov-cli fge-create-poll <token> <sender> <amount> <title> <description> <link>")
		os.Exit(1)
	}
	body := map[string]any{
		"token_caller": "cw20-placeholder",
		"sender":       args[1],
		"amount":       args[2],
		"msg": map[string]string{
			"title":       args[3],
			"description": args[4],
			"link":        args[5],
		},
	}
	postAdmin(args[0], "/v1/fge/polls", body)
}

func fgeCastVote(args []string) {
	if len(args) < 5 {
		fmt.Println("usage: daogov-cli fge-vote <token> <poll-id> <sender> <vote:yes|no> <amount>")
		os.Exit(1)
	}
	body := map[string]any{
		"sender": args[2],
		"vote":   voteCode(args[3]),
		"amount": args[4],
	}
	postAdmin(args[0], "/v1/fge/polls/"+args[1]+"/vote", body)
}

func fgeEndPoll(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: daogov-cli fge-end-poll <token> <poll-id>")
		os.Exit(1)
	}
	postAdmin(args[0], "/v1/fge/polls/"+args[1]+"/end", map[string]any{})
}

func ngeCreatePoll(args []string) {
	if len(args) < 5 {
		fmt.Println("usage: daogov-cli nge-create-poll <token> <sender-id> <title> <description> <link>")
		os.Exit(1)
	}
	body := map[string]any{
		"sender_id": args[1],
		"msg": map[string]string{
			"title":       args[2],
			"description": args[3],
			"link":        args[4],
		},
	}
	postAdmin(args[0], "/v1/nge/polls", body)
}

func ngeCastVote(args []string) {
	if len(args) < 4 {
		fmt.Println("usage: daogov-cli nge-vote <token> <poll-id> <voter-id> <vote:yes|no>")
		os.Exit(1)
	}
	body := map[string]any{
		"voter_id": args[2],
		"vote":     voteCode(args[3]),
	}
	postAdmin(args[0], "/v1/nge/polls/"+args[1]+"/vote", body)
}

func query(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: daogov-cli query <path>")
		os.Exit(1)
	}
	resp, err := http.Get(defaultQueryEndpoint + args[0])
	if err != nil {
		fatal("query", err)
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

func postAdmin(token, path string, body map[string]any) {
	blob, err := json.Marshal(body)
	if err != nil {
		fatal("marshal body", err)
	}
	req, err := http.NewRequest(http.MethodPost, defaultAdminEndpoint+path, bytes.NewReader(blob))
	if err != nil {
		fatal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("submit request", err)
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

func voteCode(s string) int {
	if s == "yes" {
		return 1
	}
	return 2
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}

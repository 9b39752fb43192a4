package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"nengajo/config"
	"nengajo/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // overridden via RPC_URL or --rpc
var rpcAuthToken = os.Getenv(config.EnvRPCToken)

const defaultKeyFile = "wallet.key"

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}
	if err := runCommand(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(command string, args []string) error {
	switch command {
	case "generate-key":
		path := defaultKeyFile
		if len(args) > 0 {
			path = args[0]
		}
		return generateKey(path)
	case "address":
		if len(args) < 1 {
			return usageError("address <key_file>")
		}
		return showAddress(args[0])
	case "approve":
		if len(args) < 2 {
			return usageError("approve <amount> <key_file>")
		}
		return approve(args[0], args[1])
	case "register":
		if len(args) < 3 {
			return usageError("register <max_supply> <uri> <key_file>")
		}
		return register(args[0], args[1], args[2])
	case "mint":
		if len(args) < 2 {
			return usageError("mint <design_id> <key_file>")
		}
		return mint(args[0], args[1])
	case "add-admins":
		if len(args) < 2 {
			return usageError("add-admins <key_file> <address>...")
		}
		return addAdmins(args[0], args[1:])
	case "switch-mintable":
		if len(args) < 1 {
			return usageError("switch-mintable <key_file>")
		}
		return switchMintable(args[0])
	case "info":
		return showInfo()
	case "designs":
		return listDesigns()
	case "design":
		if len(args) < 1 {
			return usageError("design <design_id>")
		}
		return showDesign(args[0])
	case "window":
		return showWindow()
	case "balance":
		if len(args) < 1 {
			return usageError("balance <address>")
		}
		return showBalance(args[0])
	case "activity":
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}
		return showActivity(filter)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usageError(usage string) error {
	return fmt.Errorf("usage: nengajo-cli %s", usage)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) Error() string {
	var data struct {
		Reason    string `json:"reason"`
		Retryable bool   `json:"retryable"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &data) == nil && data.Reason != "" {
		if data.Retryable {
			return fmt.Sprintf("error from node: %s (%s, retry later)", e.Message, data.Reason)
		}
		return fmt.Sprintf("error from node: %s (%s)", e.Message, data.Reason)
	}
	return fmt.Sprintf("error from node: %s", e.Message)
}

func callRPC(method string, requireAuth bool, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth && strings.TrimSpace(rpcAuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node (HTTP %d)", resp.StatusCode)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func printJSONResult(result json.RawMessage) {
	if len(result) == 0 {
		fmt.Println("No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(buf.String())
}

func generateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", path)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, key.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to save key to %s: %w", path, err)
	}
	addr := key.Address()
	fmt.Printf("Generated new key and saved to %s\n", path)
	fmt.Printf("Your address is: %s (%s)\n", addr.String(), addr.Hex())
	fmt.Println("Store this file securely.")
	return nil
}

func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("private key file %s not found. run ./nengajo-cli generate-key first", path)
		}
		return nil, fmt.Errorf("failed to read private key file %s: %w", path, err)
	}
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("private key file %s is empty. run ./nengajo-cli generate-key first", path)
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key in %s: %w", path, err)
	}
	return privKey, nil
}

func showAddress(keyFile string) error {
	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return err
	}
	addr := key.Address()
	fmt.Printf("%s\n%s\n", addr.String(), addr.Hex())
	return nil
}

func printUsage() {
	fmt.Println("Usage: nengajo-cli [--rpc URL] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  generate-key [key_file]                  - Generates a signing key (default wallet.key)")
	fmt.Println("  address <key_file>                       - Prints the address of a key")
	fmt.Println("  approve <amount> <key_file>              - Lets the drop pull gating tokens for registration fees")
	fmt.Println("  register <max_supply> <uri> <key_file>   - Pays the fee and registers a design")
	fmt.Println("  mint <design_id> <key_file>              - Claims one copy of a design")
	fmt.Println("  add-admins <key_file> <address>...       - Grants admin rights (admins only)")
	fmt.Println("  switch-mintable <key_file>               - Toggles the minting override (admins only)")
	fmt.Println("  info                                     - Shows the drop parameters")
	fmt.Println("  designs                                  - Lists registered designs")
	fmt.Println("  design <design_id>                       - Shows one design")
	fmt.Println("  window                                   - Shows the time until the window opens and closes")
	fmt.Println("  balance <address>                        - Shows gating balance, allowance and holdings")
	fmt.Println("  activity [address|design_id]             - Shows indexed drop activity")
	fmt.Println()
	fmt.Printf("Set %s when the node requires a bearer token for transactions.\n", config.EnvRPCToken)
}

package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var deriveAPICredsCmd = &cobra.Command{
	Use:   "derive-api-creds",
	Short: "Derive CLOB API credentials from the private key",
	Long: `Signs the CLOB's L1 authentication message with your private key and
retrieves the API key, secret, and passphrase for order signing.

Save the output to .env:
  POLYMARKET_API_KEY=...
  POLYMARKET_SECRET=...
  POLYMARKET_PASSPHRASE=...`,
	Args: cobra.NoArgs,
	RunE: runDeriveAPICreds,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(deriveAPICredsCmd)
}

func runDeriveAPICreds(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if creds.PrivateKey == "" {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY not set")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	fmt.Printf("EOA address: %s\n\n", address.Hex())

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature, err := signClobAuth(key, address.Hex(), timestamp)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	apiCreds, err := fetchDerivedCreds(ctx, cfg.ClobAPIURL, address.Hex(), signature, timestamp)
	if err != nil {
		return err
	}

	fmt.Printf("POLYMARKET_API_KEY=%s\n", apiCreds.APIKey)
	fmt.Printf("POLYMARKET_SECRET=%s\n", apiCreds.Secret)
	fmt.Printf("POLYMARKET_PASSPHRASE=%s\n\n", apiCreds.Passphrase)
	fmt.Println("Save these to .env; they are bound to your private key.")

	return nil
}

// signClobAuth produces the EIP-712 signature the CLOB's L1 auth expects.
func signClobAuth(key *ecdsa.PrivateKey, address, timestamp string) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(137),
		},
		Message: map[string]interface{}{
			"address":   address,
			"timestamp": timestamp,
			"nonce":     "0",
			"message":   "This message attests that I control the given wallet",
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("hash message: %w", err)
	}

	digest := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19\x01%s%s", domainSeparator, messageHash)))
	signature, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return "", fmt.Errorf("sign auth message: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return hexutil.Encode(signature), nil
}

type derivedCreds struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func fetchDerivedCreds(ctx context.Context, baseURL, address, signature, timestamp string) (*derivedCreds, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_NONCE", "0")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call derive-api-key: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("derive-api-key returned %d: %s", resp.StatusCode, body)
	}

	var creds derivedCreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &creds, nil
}

package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Grant the CTF Exchange its one-time token approvals",
	Long: `Submits the two on-chain approvals live trading needs:
1. ERC20: let the CTF Exchange pull USDC when buy orders match
2. ERC1155: let it move outcome tokens when claim sells match

Both are one-time transactions per wallet. Approval is unlimited unless
--amount caps the USDC allowance.`,
	Args: cobra.NoArgs,
	RunE: runApprove,
}

//nolint:gochecknoglobals // Cobra boilerplate
var approveAmount string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVarP(&approveAmount, "amount", "a", "unlimited", "USDC allowance (unlimited or a dollar amount)")
}

const erc20ApproveABI = `[{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

const erc1155ApproveABI = `[{"constant":false,"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"type":"function"}]`

func runApprove(cmd *cobra.Command, args []string) error {
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
	from := crypto.PubkeyToAddress(key.PublicKey)

	allowance, err := parseApproveAmount(approveAmount)
	if err != nil {
		return err
	}

	client, err := ethclient.Dial(cfg.PolygonRPCURL)
	if err != nil {
		return fmt.Errorf("connect to Polygon: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("Wallet: %s\n\n", from.Hex())

	// USDC spend approval for buys.
	usdcData, err := packCall(erc20ApproveABI, "approve", common.HexToAddress(ctfExchangeAddress), allowance)
	if err != nil {
		return err
	}
	fmt.Println("Approving USDC spend...")
	if err := sendContractTx(ctx, client, key, from, common.HexToAddress(usdcAddress), usdcData); err != nil {
		return fmt.Errorf("USDC approval: %w", err)
	}

	// Outcome-token approval for claim sells.
	ctfData, err := packCall(erc1155ApproveABI, "setApprovalForAll", common.HexToAddress(ctfExchangeAddress), true)
	if err != nil {
		return err
	}
	fmt.Println("Approving outcome-token transfers...")
	if err := sendContractTx(ctx, client, key, from, common.HexToAddress(ctfAddress), ctfData); err != nil {
		return fmt.Errorf("CTF approval: %w", err)
	}

	fmt.Println("\nApprovals complete. Verify with 'updown-arb balance'.")
	return nil
}

func parseApproveAmount(s string) (*big.Int, error) {
	if s == "unlimited" {
		unlimited := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		return unlimited, nil
	}

	f, ok := new(big.Float).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	// USDC has 6 decimals.
	f.Mul(f, big.NewFloat(1e6))
	amount, _ := f.Int(nil)
	return amount, nil
}

func packCall(abiJSON, method string, params ...interface{}) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	data, err := parsed.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// sendContractTx signs, submits, and waits for one contract call.
func sendContractTx(
	ctx context.Context,
	client *ethclient.Client,
	key *ecdsa.PrivateKey,
	from common.Address,
	to common.Address,
	data []byte,
) error {
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("get gas price: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), 100000, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), key)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	fmt.Printf("  tx %s\n", signed.Hash().Hex())

	receipt, err := waitForReceipt(ctx, client, signed.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction reverted")
	}
	fmt.Printf("  confirmed in block %d (gas %d)\n", receipt.BlockNumber.Uint64(), receipt.GasUsed)
	return nil
}

func waitForReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for receipt of %s", hash.Hex())
		case <-ticker.C:
		}
	}
}

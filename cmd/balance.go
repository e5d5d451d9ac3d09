package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check wallet funding and exchange approvals",
	Long: `Displays the trading wallet's POL balance (for gas), USDC balance
(the engine's bankroll), and the USDC allowance granted to the CTF
Exchange. All three must be positive before live trading works.`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

// Polygon mainnet contracts.
const (
	usdcAddress        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	ctfAddress         = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

const erc20ReadABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

func runBalance(cmd *cobra.Command, args []string) error {
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

	address, err := walletAddress(creds)
	if err != nil {
		return err
	}

	client, err := ethclient.Dial(cfg.PolygonRPCURL)
	if err != nil {
		return fmt.Errorf("connect to Polygon: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Wallet: %s\n\n", address.Hex())

	gasBalance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("get gas balance: %w", err)
	}
	fmt.Printf("POL:  %s\n", formatUnits(gasBalance, 1e18, 6))

	usdcBalance, err := erc20Read(ctx, client, usdcAddress, "balanceOf", address)
	if err != nil {
		return fmt.Errorf("get USDC balance: %w", err)
	}
	fmt.Printf("USDC: %s\n", formatUnits(usdcBalance, 1e6, 2))

	allowance, err := erc20Read(ctx, client, usdcAddress, "allowance",
		address, common.HexToAddress(ctfExchangeAddress))
	if err != nil {
		return fmt.Errorf("get USDC allowance: %w", err)
	}
	if allowance.Cmp(new(big.Int).SetUint64(1e18)) > 0 {
		fmt.Printf("Allowance: unlimited\n")
	} else {
		fmt.Printf("Allowance: %s USDC\n", formatUnits(allowance, 1e6, 2))
	}

	fmt.Printf("\nReady for live trading: ")
	switch {
	case usdcBalance.Sign() == 0:
		fmt.Println("no — wallet holds no USDC")
	case allowance.Sign() == 0:
		fmt.Println("no — run 'updown-arb approve' first")
	case gasBalance.Sign() == 0:
		fmt.Println("no — wallet holds no POL for gas")
	default:
		fmt.Println("yes")
	}

	return nil
}

// walletAddress derives the EOA address from the configured private key.
func walletAddress(creds *config.Credentials) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected public key type")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func erc20Read(ctx context.Context, client *ethclient.Client, token, method string, params ...interface{}) (*big.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc20ReadABI))
	if err != nil {
		return nil, err
	}

	data, err := parsedABI.Pack(method, params...)
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(token)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(result), nil
}

func formatUnits(amount *big.Int, unit float64, places int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(unit))
	return f.Text('f', places)
}

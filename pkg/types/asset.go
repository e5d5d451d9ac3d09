package types

import (
	"fmt"
	"strings"
)

// Asset identifies an underlying asset with 15-minute up/down markets.
type Asset string

const (
	AssetBTC Asset = "BTC"
	AssetETH Asset = "ETH"
	AssetSOL Asset = "SOL"
)

// ParseAsset normalizes and validates an asset symbol.
func ParseAsset(s string) (Asset, error) {
	switch a := Asset(strings.ToUpper(strings.TrimSpace(s))); a {
	case AssetBTC, AssetETH, AssetSOL:
		return a, nil
	default:
		return "", fmt.Errorf("unknown asset %q", s)
	}
}

// ParseAssets parses a comma-separated list of asset symbols.
func ParseAssets(csv string) ([]Asset, error) {
	parts := strings.Split(csv, ",")
	assets := make([]Asset, 0, len(parts))
	seen := make(map[Asset]bool, len(parts))

	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		asset, err := ParseAsset(part)
		if err != nil {
			return nil, err
		}
		if seen[asset] {
			continue
		}
		seen[asset] = true
		assets = append(assets, asset)
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets in %q", csv)
	}

	return assets, nil
}

// SlugPrefix returns the lowercase form used in market slugs.
func (a Asset) SlugPrefix() string {
	return strings.ToLower(string(a))
}

func (a Asset) String() string {
	return string(a)
}

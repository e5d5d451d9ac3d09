package config

import (
	"errors"
	"os"
	"strconv"
)

// Credentials holds the CLOB API credentials and signing key. Loaded
// separately from Config so read-only commands can run without them.
type Credentials struct {
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string // hex, with or without 0x prefix
	Address       string // EOA address; derived from the key when empty
	ProxyAddress  string // maker/funder when trading through a proxy wallet
	SignatureType int
}

// LoadCredentials reads CLOB credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{
		APIKey:       os.Getenv("POLYMARKET_API_KEY"),
		Secret:       os.Getenv("POLYMARKET_SECRET"),
		Passphrase:   os.Getenv("POLYMARKET_PASSPHRASE"),
		PrivateKey:   os.Getenv("POLYMARKET_PRIVATE_KEY"),
		Address:      os.Getenv("POLYMARKET_ADDRESS"),
		ProxyAddress: os.Getenv("POLYMARKET_PROXY_ADDRESS"),
	}

	if sigType := os.Getenv("POLYMARKET_SIGNATURE_TYPE"); sigType != "" {
		parsed, err := strconv.Atoi(sigType)
		if err != nil {
			return nil, errors.New("POLYMARKET_SIGNATURE_TYPE must be an integer")
		}
		creds.SignatureType = parsed
	}

	return creds, nil
}

// ValidateForTrading checks the fields live order submission needs.
// Dry-run mode skips this.
func (c *Credentials) ValidateForTrading() error {
	if c.PrivateKey == "" {
		return errors.New("POLYMARKET_PRIVATE_KEY not set")
	}
	if c.APIKey == "" {
		return errors.New("POLYMARKET_API_KEY not set")
	}
	if c.Secret == "" {
		return errors.New("POLYMARKET_SECRET not set")
	}
	if c.Passphrase == "" {
		return errors.New("POLYMARKET_PASSPHRASE not set")
	}
	return nil
}

package params

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrUnknownOrderType = errors.New("unknown order type")
)

// Route is the resolved destination of an order for one (asset, orderType) pair.
type Route struct {
	// AccountID is appended to the wallet address to form the router sub-account id
	// (collateral id, asset id and side byte, hex encoded).
	AccountID string
	Router    common.Address
}

type routeEntry struct {
	AccountID string `yaml:"accountId"`
	Router    string `yaml:"router"`
}

// AssetTable maps assets and order types to router routes.
//
// File layout:
//
//	router: "0xa19fD5aB6C8DCffa2A295F78a5Bb4aC543AAF5e3"
//	referralCode: "0x..."
//	assets:
//	  ETH:
//	    long:  {accountId: "000301"}
//	    short: {accountId: "000300"}
type AssetTable struct {
	Router       string                           `yaml:"router"`
	ReferralCode string                           `yaml:"referralCode"`
	Assets       map[string]map[string]routeEntry `yaml:"assets"`
}

// LoadAssets reads and validates an asset table file.
func LoadAssets(path string) (*AssetTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAssets(data)
}

func ParseAssets(data []byte) (*AssetTable, error) {
	var t AssetTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse asset table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid asset table: %w", err)
	}
	return &t, nil
}

// maxAccountIDBytes is what is left of the router's bytes32 sub-account id
// after the 20-byte wallet address.
const maxAccountIDBytes = 12

// Validate checks every router address and account id in the table. Order
// types are normalised to lower case so lookups are case-insensitive.
func (t *AssetTable) Validate() error {
	if t.Router != "" && !common.IsHexAddress(t.Router) {
		return fmt.Errorf("router %q is not an address", t.Router)
	}
	for asset, types := range t.Assets {
		normalised := make(map[string]routeEntry, len(types))
		for orderType, entry := range types {
			if entry.Router == "" && t.Router == "" {
				return fmt.Errorf("%s/%s: no router configured", asset, orderType)
			}
			if entry.Router != "" && !common.IsHexAddress(entry.Router) {
				return fmt.Errorf("%s/%s: router %q is not an address", asset, orderType, entry.Router)
			}
			if err := validateAccountID(entry.AccountID); err != nil {
				return fmt.Errorf("%s/%s: %w", asset, orderType, err)
			}
			normalised[strings.ToLower(orderType)] = entry
		}
		t.Assets[asset] = normalised
	}
	return nil
}

// validateAccountID requires whole hex bytes that fit beside a wallet address.
func validateAccountID(id string) error {
	if id == "" {
		return errors.New("accountId is empty")
	}
	if len(id)%2 == 1 {
		return fmt.Errorf("accountId %q has an odd number of hex digits", id)
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("accountId %q is not hex", id)
	}
	if len(b) > maxAccountIDBytes {
		return fmt.Errorf("accountId %q is longer than %d bytes", id, maxAccountIDBytes)
	}
	return nil
}

// Resolve returns the route for asset and orderType. orderType is matched
// case-insensitively ("Long" and "long" are the same entry).
func (t *AssetTable) Resolve(asset, orderType string) (Route, error) {
	types, ok := t.Assets[asset]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	entry, ok := types[strings.ToLower(orderType)]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q for %s", ErrUnknownOrderType, orderType, asset)
	}
	router := entry.Router
	if router == "" {
		router = t.Router
	}
	return Route{AccountID: entry.AccountID, Router: common.HexToAddress(router)}, nil
}

// DefaultRouter is the router used for requests that carry no asset, such as cancellations.
func (t *AssetTable) DefaultRouter() (common.Address, error) {
	if t.Router == "" {
		return common.Address{}, errors.New("no default router configured")
	}
	return common.HexToAddress(t.Router), nil
}

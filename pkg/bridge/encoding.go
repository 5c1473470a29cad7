package bridge

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Router order flags.
const (
	FlagLimitSell uint8 = 32
	FlagStopLoss  uint8 = 48
	FlagLimitBuy  uint8 = 128
)

// Decimal places of the router's fixed-point arguments.
const (
	CollateralDecimals = 6
	FixedPointDecimals = 18
	PriceDecimals      = 2
)

var maxUint96 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// EncodedOrder holds placePositionOrder2 arguments in contract units.
type EncodedOrder struct {
	SubAccountID  [32]byte
	Collateral    *big.Int
	Size          *big.Int
	Price         *big.Int
	ProfitTokenID uint8
	Flag          uint8
	Deadline      uint32
	ReferralCode  [32]byte
}

// Args renders the order for a TransactionHandle.
func (o *EncodedOrder) Args() *OrderArgs {
	return &OrderArgs{
		SubAccountID:  "0x" + hex.EncodeToString(o.SubAccountID[:]),
		Collateral:    o.Collateral.String(),
		Size:          o.Size.String(),
		Price:         o.Price.String(),
		ProfitTokenID: o.ProfitTokenID,
		Flag:          o.Flag,
		Deadline:      o.Deadline,
	}
}

// ParseDecimal parses a client-supplied number. field names the input in the error.
func ParseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, EncodingError(field, errors.New("empty value"))
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, EncodingError(field, fmt.Errorf("%q is not a number", raw))
	}
	return d, nil
}

// SubAccountID joins wallet address and account index as strings.
func SubAccountID(walletAddress, accountID string) string {
	return walletAddress + accountID
}

// SubAccountBytes packs a hex sub-account id into the router's bytes32,
// left-aligned and zero-padded on the right. The id must be whole bytes.
func SubAccountBytes(id string) ([32]byte, error) {
	var out [32]byte
	s := strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X")
	if len(s)%2 == 1 {
		return out, EncodingError("subAccountId", fmt.Errorf("%q has an odd number of hex digits", id))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, EncodingError("subAccountId", fmt.Errorf("%q is not hex", id))
	}
	if len(b) > len(out) {
		return out, EncodingError("subAccountId", fmt.Errorf("%d bytes exceeds bytes32", len(b)))
	}
	copy(out[:], b)
	return out, nil
}

// ParseBytes32 decodes an optional hex referral code. Empty means zero.
func ParseBytes32(field, s string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) > len(out) {
		return out, ConfigurationError(field, fmt.Errorf("%q is not a bytes32 hex value", s))
	}
	copy(out[:], b)
	return out, nil
}

// closesPosition reports whether flag is a sell or stop-loss order. Those are
// submitted without collateral whatever the caller supplied.
func closesPosition(flag uint8) bool {
	return flag == FlagLimitSell || flag == FlagStopLoss
}

// EncodeOrder converts intent into contract units:
//
//	price      = round(price, 2) * 10^18
//	size       = trunc(collateral * multiplier * 10^18 / round(price, 2))
//	collateral = trunc(collateral * 10^6), or 0 for flags 32 and 48
//
// All arithmetic is exact; every value must fit uint96.
func EncodeOrder(intent OrderIntent, deadline time.Time, referral [32]byte) (*EncodedOrder, error) {
	if !common.IsHexAddress(intent.WalletAddress) {
		return nil, EncodingError("walletAddress", fmt.Errorf("%q is not an address", intent.WalletAddress))
	}
	subAccount, err := SubAccountBytes(SubAccountID(intent.WalletAddress, intent.AccountID))
	if err != nil {
		return nil, err
	}

	if intent.Collateral.IsNegative() {
		return nil, EncodingError("tradeAmount", errors.New("must not be negative"))
	}
	if intent.Multiplier.IsNegative() {
		return nil, EncodingError("multiplier", errors.New("must not be negative"))
	}
	price := intent.Price.Round(PriceDecimals)
	if !price.IsPositive() {
		return nil, EncodingError("price", fmt.Errorf("%s rounds to a non-positive price", intent.Price))
	}

	sizeQ, _ := intent.Collateral.Mul(intent.Multiplier).Shift(FixedPointDecimals).QuoRem(price, 0)
	size, err := toUint96("size", sizeQ)
	if err != nil {
		return nil, err
	}
	priceUnits, err := toUint96("price", price.Shift(FixedPointDecimals))
	if err != nil {
		return nil, err
	}

	collateral := new(big.Int)
	if !closesPosition(intent.Flag) {
		collateral, err = toUint96("tradeAmount", intent.Collateral.Shift(CollateralDecimals).Truncate(0))
		if err != nil {
			return nil, err
		}
	}

	unix := deadline.Unix()
	if unix < 0 || unix > math.MaxUint32 {
		return nil, EncodingError("deadline", fmt.Errorf("%d does not fit uint32", unix))
	}

	return &EncodedOrder{
		SubAccountID:  subAccount,
		Collateral:    collateral,
		Size:          size,
		Price:         priceUnits,
		ProfitTokenID: intent.ProfitTokenID,
		Flag:          intent.Flag,
		Deadline:      uint32(unix),
		ReferralCode:  referral,
	}, nil
}

func toUint96(field string, d decimal.Decimal) (*big.Int, error) {
	v := d.BigInt()
	if v.Sign() < 0 || v.Cmp(maxUint96) > 0 {
		return nil, EncodingError(field, fmt.Errorf("%s overflows uint96", v))
	}
	return v, nil
}

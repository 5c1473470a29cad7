package bridge

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodPlacePositionOrder2 = "placePositionOrder2"
	MethodCancelOrder         = "cancelOrder"
)

// routerABI is the subset of the MUX OrderBook ABI this bridge calls.
const routerABI = `[
	{
		"inputs": [
			{"name": "subAccountId", "type": "bytes32"},
			{"name": "collateralAmount", "type": "uint96"},
			{"name": "size", "type": "uint96"},
			{"name": "price", "type": "uint96"},
			{"name": "profitTokenId", "type": "uint8"},
			{"name": "flags", "type": "uint8"},
			{"name": "deadline", "type": "uint32"},
			{"name": "referralCode", "type": "bytes32"}
		],
		"name": "placePositionOrder2",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "orderId", "type": "uint64"}
		],
		"name": "cancelOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// RouterABI parses the embedded router ABI.
func RouterABI() (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	return &parsed, nil
}

func packPlaceOrder(a *abi.ABI, o *EncodedOrder) ([]byte, error) {
	data, err := a.Pack(MethodPlacePositionOrder2,
		o.SubAccountID,
		o.Collateral,
		o.Size,
		o.Price,
		o.ProfitTokenID,
		o.Flag,
		o.Deadline,
		o.ReferralCode,
	)
	if err != nil {
		return nil, EncodingError(MethodPlacePositionOrder2, err)
	}
	return data, nil
}

func packCancelOrder(a *abi.ABI, orderID uint64) ([]byte, error) {
	data, err := a.Pack(MethodCancelOrder, orderID)
	if err != nil {
		return nil, EncodingError(MethodCancelOrder, err)
	}
	return data, nil
}

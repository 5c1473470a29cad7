package bridge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Credentials identify the node to submit through and the key to sign with.
type Credentials struct {
	Endpoint string // ws(s):// or http(s):// JSON-RPC endpoint
	Mnemonic string // BIP-39 phrase or hex private key; never logged
}

// OrderIntent is a place-order request at UI scale.
type OrderIntent struct {
	AccountID     string // sub-account suffix appended to WalletAddress
	Collateral    decimal.Decimal
	Multiplier    decimal.Decimal
	Price         decimal.Decimal
	ProfitTokenID uint8
	Flag          uint8
	WalletAddress string
	Router        common.Address
	Credentials   Credentials
}

// CancelIntent cancels a router order by its contract-assigned id.
type CancelIntent struct {
	OrderID       uint64
	WalletAddress string
	Router        common.Address
	Credentials   Credentials
}

// OrderArgs is the encoded argument set of placePositionOrder2, as returned to clients.
type OrderArgs struct {
	SubAccountID  string `json:"subAccountId"`
	Collateral    string `json:"collateralAmount"`
	Size          string `json:"size"`
	Price         string `json:"price"`
	ProfitTokenID uint8  `json:"profitTokenId"`
	Flag          uint8  `json:"flags"`
	Deadline      uint32 `json:"deadline"`
}

// TransactionHandle describes a submitted, not yet mined, router transaction.
type TransactionHandle struct {
	Hash     common.Hash    `json:"hash"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	ChainID  string         `json:"chainId"`
	Nonce    uint64         `json:"nonce"`
	GasPrice string         `json:"gasPrice"`
	Gas      uint64         `json:"gas"`
	Method   string         `json:"method"`
	Order    *OrderArgs     `json:"order,omitempty"`
	OrderID  *uint64        `json:"orderId,omitempty"`
}

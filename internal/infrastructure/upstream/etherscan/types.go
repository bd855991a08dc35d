package etherscan

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the common Etherscan response. Result is an array on success
// and a string on failure.
type envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  jsoniter.RawMessage `json:"result"`
}

type normalTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	ContractAddress string `json:"contractAddress"`
	FunctionName    string `json:"functionName"`
}

type tokenTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	TokenID         string `json:"tokenID"`
	TokenValue      string `json:"tokenValue"`
	LogIndex        string `json:"logIndex"`
}

// transferKey identifies one transfer row. Pages that shift while being
// walked repeat rows, so each row is kept once.
func transferKey(tr tokenTransfer) (string, bool) {
	if tr.Hash == "" {
		return "", false
	}
	return strings.ToLower(tr.Hash) + "-" + tr.LogIndex + "-" + strings.ToLower(tr.ContractAddress) + "-" + tr.TokenID, true
}

type transferKind int

const (
	kindERC20 transferKind = iota
	kindERC721
	kindERC1155
)

var transferActions = []struct {
	action string
	kind   transferKind
}{
	{"tokentx", kindERC20},
	{"tokennfttx", kindERC721},
	{"token1155tx", kindERC1155},
}

package etherscan

import (
	"strconv"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/utils"
)

func unixTime(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func txStatus(tx normalTx) string {
	if tx.IsError == "1" || tx.TxReceiptStatus == "0" {
		return "failed"
	}
	return "confirmed"
}

// formatAmount renders a raw integer amount with decimals applied. Unparsable input is returned as is.
func formatAmount(raw string, decimals int32) string {
	v, err := utils.ParseRawBalance(raw)
	if err != nil {
		return raw
	}
	return utils.FormatBigInt(v, decimals)
}

func mapNormalTx(tx normalTx, def entity.ChainDefinition) entity.Transaction {
	out := entity.Transaction{
		Hash:      strings.ToLower(tx.Hash),
		ChainID:   def.ChainID,
		MinedAt:   unixTime(tx.TimeStamp),
		From:      strings.ToLower(tx.From),
		To:        strings.ToLower(tx.To),
		Status:    txStatus(tx),
		Transfers: []entity.TransferLine{},
	}
	if v, err := utils.ParseRawBalance(tx.Value); err == nil && v.Sign() > 0 {
		out.Transfers = append(out.Transfers, entity.TransferLine{
			From:         out.From,
			To:           out.To,
			SymbolOrName: def.NativeSymbol,
			Decimals:     def.Decimals,
			Amount:       utils.FormatBigInt(v, def.Decimals),
		})
	}
	return out
}

func mapTransferLine(tr tokenTransfer, kind transferKind) entity.TransferLine {
	contract := strings.ToLower(tr.ContractAddress)
	line := entity.TransferLine{
		From:            strings.ToLower(tr.From),
		To:              strings.ToLower(tr.To),
		ContractAddress: &contract,
	}
	switch kind {
	case kindERC20:
		decimals, err := strconv.ParseInt(tr.TokenDecimal, 10, 32)
		if err != nil {
			decimals = 18
		}
		line.SymbolOrName = tr.TokenSymbol
		line.Decimals = int32(decimals)
		line.Amount = formatAmount(tr.Value, line.Decimals)
	case kindERC721, kindERC1155:
		tokenID := tr.TokenID
		line.IsNFT = true
		line.SymbolOrName = tr.TokenName
		line.TokenID = &tokenID
		line.Amount = "1"
		if kind == kindERC1155 && tr.TokenValue != "" {
			line.Amount = tr.TokenValue
		}
	}
	return line
}

// transactionFromTransfer builds a transaction for a transfer whose parent is
// absent from txlist, e.g. an incoming token transfer sent by a contract.
func transactionFromTransfer(tr tokenTransfer, chainID int64) entity.Transaction {
	return entity.Transaction{
		Hash:      strings.ToLower(tr.Hash),
		ChainID:   chainID,
		MinedAt:   unixTime(tr.TimeStamp),
		From:      strings.ToLower(tr.From),
		To:        strings.ToLower(tr.To),
		Status:    "confirmed",
		Transfers: []entity.TransferLine{},
	}
}

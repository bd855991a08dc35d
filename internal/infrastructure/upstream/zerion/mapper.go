package zerion

import (
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/utils"
)

func implementationFor(info fungibleInfo, chain string) *implementation {
	for i := range info.Implementations {
		if strings.EqualFold(info.Implementations[i].ChainID, chain) {
			return &info.Implementations[i]
		}
	}
	return nil
}

func tokenAddressOf(info fungibleInfo, chain string) *string {
	impl := implementationFor(info, chain)
	if impl == nil || impl.Address == nil || *impl.Address == "" {
		return nil
	}
	addr := strings.ToLower(*impl.Address)
	return &addr
}

// amountOf prefers the exact decimal string over the float approximation.
func amountOf(q quantity) float64 {
	if q.Numeric != "" {
		if v, err := utils.ParseDecimalFloat(q.Numeric); err == nil {
			return v
		}
	}
	return q.Float
}

func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t
}

// mapPosition converts a Zerion position. ok is false when the chain is unknown.
func mapPosition(p position, wallet string, names networkdefinition.NameMapping, now time.Time) (entity.TokenPosition, bool) {
	chain := p.Relationships.Chain.Data.ID
	chainID, ok := names.Canonical(chain)
	if !ok {
		return entity.TokenPosition{}, false
	}

	attr := p.Attributes
	info := attr.FungibleInfo
	tokenAddress := tokenAddressOf(info, chain)

	balanceRaw := attr.Quantity.Int
	if balanceRaw == "" {
		balanceRaw = "0"
	}

	verified := true
	if info.Flags.Verified != nil {
		verified = *info.Flags.Verified
	}

	var protocol *string
	if attr.Protocol != nil && *attr.Protocol != "" {
		protocol = attr.Protocol
	}

	logo := ""
	if info.Icon != nil {
		logo = info.Icon.URL
	}

	pos := entity.TokenPosition{
		ID:             p.ID,
		ChainID:        chainID,
		WalletAddress:  wallet,
		TokenAddress:   tokenAddress,
		BalanceRaw:     balanceRaw,
		BalanceFloat:   amountOf(attr.Quantity),
		Decimals:       attr.Quantity.Decimals,
		Symbol:         info.Symbol,
		Name:           info.Name,
		Logo:           logo,
		PositionKind:   entity.ParsePositionKind(attr.PositionType),
		Protocol:       protocol,
		IsVerified:     verified,
		IsNative:       tokenAddress == nil,
		SourceProvider: entity.ProviderZerion,
		UpdatedAt:      parseTime(attr.UpdatedAt, now),
	}
	price := 0.0
	if attr.Price != nil {
		price = *attr.Price
	}
	pos.Reprice(price)
	return pos, true
}

func mapTransaction(tx transaction, names networkdefinition.NameMapping) entity.Transaction {
	chain := tx.Relationships.Chain.Data.ID
	chainID, _ := names.Canonical(chain)
	attr := tx.Attributes

	out := entity.Transaction{
		Hash:      strings.ToLower(attr.Hash),
		ChainID:   chainID,
		MinedAt:   parseTime(attr.MinedAt, time.Time{}),
		From:      strings.ToLower(attr.SentFrom),
		To:        strings.ToLower(attr.SentTo),
		Status:    attr.Status,
		Transfers: make([]entity.TransferLine, 0, len(attr.Transfers)),
	}
	for _, tr := range attr.Transfers {
		line := entity.TransferLine{
			From:   strings.ToLower(tr.Sender),
			To:     strings.ToLower(tr.Recipient),
			Amount: tr.Quantity.Numeric,
		}
		switch {
		case tr.NFTInfo != nil:
			contract := strings.ToLower(tr.NFTInfo.ContractAddress)
			tokenID := tr.NFTInfo.TokenID
			line.IsNFT = true
			line.SymbolOrName = tr.NFTInfo.Name
			line.ContractAddress = &contract
			line.TokenID = &tokenID
		case tr.FungibleInfo != nil:
			line.SymbolOrName = tr.FungibleInfo.Symbol
			line.Decimals = tr.Quantity.Decimals
			line.ContractAddress = tokenAddressOf(*tr.FungibleInfo, chain)
		}
		if line.Amount == "" {
			line.Amount = tr.Quantity.Int
		}
		out.Transfers = append(out.Transfers, line)
	}
	return out
}

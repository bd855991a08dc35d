package alchemy

import (
	"fmt"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/utils"
)

const defaultDecimals int32 = 18

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if s := deref(v); s != "" {
			return s
		}
	}
	return ""
}

func isNative(t token) bool {
	return t.TokenAddress == nil || *t.TokenAddress == ""
}

// needsMetadata reports whether an ERC-20 entry lacks any descriptive field.
func needsMetadata(t token) bool {
	if isNative(t) {
		return false
	}
	m := t.TokenMetadata
	return deref(m.Symbol) == "" || deref(m.Name) == "" || deref(m.Logo) == "" || m.Decimals == nil
}

// mergeMetadata fills only the fields Alchemy left empty.
func mergeMetadata(m tokenMetadata, from entity.TokenMetadata) tokenMetadata {
	if deref(m.Symbol) == "" && from.Symbol != "" {
		m.Symbol = &from.Symbol
	}
	if deref(m.Name) == "" && from.Name != "" {
		m.Name = &from.Name
	}
	if deref(m.Logo) == "" && from.Logo != "" {
		m.Logo = &from.Logo
	}
	if m.Decimals == nil && from.Decimals > 0 {
		d := from.Decimals
		m.Decimals = &d
	}
	return m
}

func usdPrice(prices []tokenPrice) (float64, time.Time) {
	for _, p := range prices {
		if !strings.EqualFold(p.Currency, "usd") {
			continue
		}
		v, err := utils.ParseDecimalFloat(p.Value)
		if err != nil {
			return 0, time.Time{}
		}
		at, _ := time.Parse(time.RFC3339, p.LastUpdatedAt)
		return v, at
	}
	return 0, time.Time{}
}

// mapToken converts an Alchemy token entry. Metadata must already be enriched.
func mapToken(t token, wallet string, def entity.ChainDefinition, now time.Time) (entity.TokenPosition, error) {
	raw, err := utils.ParseRawBalance(t.TokenBalance)
	if err != nil {
		return entity.TokenPosition{}, fmt.Errorf("token balance %q: %w", t.TokenBalance, err)
	}

	pos := entity.TokenPosition{
		ChainID:        def.ChainID,
		WalletAddress:  wallet,
		BalanceRaw:     raw.String(),
		PositionKind:   entity.PositionWallet,
		IsVerified:     true,
		SourceProvider: entity.ProviderAlchemy,
	}

	m := t.TokenMetadata
	if isNative(t) {
		pos.ID = fmt.Sprintf("%s-native-%s", t.Network, wallet)
		pos.IsNative = true
		pos.Symbol = firstNonEmpty(m.Symbol, &def.NativeSymbol)
		pos.Name = firstNonEmpty(m.Name, &def.NativeName)
		pos.Decimals = def.Decimals
		if m.Decimals != nil {
			pos.Decimals = *m.Decimals
		}
	} else {
		addr := strings.ToLower(*t.TokenAddress)
		pos.ID = fmt.Sprintf("%s-%s", t.Network, addr)
		pos.TokenAddress = &addr
		pos.Symbol = deref(m.Symbol)
		pos.Name = deref(m.Name)
		pos.Decimals = defaultDecimals
		if m.Decimals != nil {
			pos.Decimals = *m.Decimals
		}
	}
	pos.Logo = deref(m.Logo)
	pos.BalanceFloat = utils.ToFloat(raw, pos.Decimals)

	price, updatedAt := usdPrice(t.TokenPrices)
	if updatedAt.IsZero() {
		updatedAt = now
	}
	pos.UpdatedAt = updatedAt
	pos.Reprice(price)
	return pos, nil
}

func mapNFT(n nft, chainID int64) entity.NFTItem {
	item := entity.NFTItem{
		ChainID:         chainID,
		ContractAddress: strings.ToLower(n.ContractAddress),
		TokenID:         n.TokenID,
		TokenType:       n.TokenType,
		Balance:         n.Balance,
		SourceProvider:  entity.ProviderAlchemy,
	}
	if n.Contract != nil {
		if item.ContractAddress == "" {
			item.ContractAddress = strings.ToLower(n.Contract.Address)
		}
		if item.TokenType == "" {
			item.TokenType = n.Contract.TokenType
		}
		item.CollectionName = deref(n.Contract.Name)
	}
	if n.Collection != nil && deref(n.Collection.Name) != "" {
		item.CollectionName = deref(n.Collection.Name)
	}

	var rawName, rawImage *string
	if n.Raw != nil && n.Raw.Metadata != nil {
		rawName = n.Raw.Metadata.Name
		rawImage = n.Raw.Metadata.Image
	}
	item.Name = firstNonEmpty(n.Name, n.Title, rawName)
	if n.Image != nil {
		item.ImageURL = firstNonEmpty(n.Image.CachedURL, n.Image.ThumbnailURL, n.Image.OriginalURL, rawImage)
	} else {
		item.ImageURL = deref(rawImage)
	}
	if item.Balance == "" {
		item.Balance = "1"
	}
	return item
}

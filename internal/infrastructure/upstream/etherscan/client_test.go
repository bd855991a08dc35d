package etherscan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	"portfolio_aggregator/internal/infrastructure/httpclient/httpclienttest"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/resilience"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const testWallet = "0x42b9df65b219b3dd36ff330a4dd8f327a6ada990"

const noTxs = `{"status":"0","message":"No transactions found","result":[]}`

func newTestClient(t *testing.T, h fasthttp.RequestHandler, pageSize int) *Client {
	t.Helper()
	dial := httpclienttest.NewServer(t, h)
	httpClient := httpclient.New(entity.ProviderEtherscan, time.Second, zap.NewNop(), httpclient.WithDial(dial))
	retry := resilience.Policy{
		MaxRetries:      3,
		DelayForAttempt: resilience.ExponentialBackoff(2 * time.Second),
		Sleep:           func(context.Context, time.Duration) error { return nil },
	}
	return NewClient(Config{BaseURL: "http://etherscan.test/v2/api", APIKey: "eskey", PageSize: pageSize},
		httpClient, resilience.NewSpacingLimiter(time.Millisecond, nil), retry,
		networkdefinition.NewRegistry(zap.NewNop(), nil), zap.NewNop())
}

func TestGetTransactionsPaginatesAndMergesTransfers(t *testing.T) {
	t.Parallel()

	var txlistPages atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		if string(args.Peek("apikey")) != "eskey" || string(args.Peek("chainid")) != "1" || string(args.Peek("offset")) != "2" {
			ctx.SetBodyString(`{"status":"0","message":"NOTOK","result":"bad query"}`)
			return
		}
		switch string(args.Peek("action")) {
		case "txlist":
			txlistPages.Add(1)
			if string(args.Peek("page")) == "1" {
				ctx.SetBodyString(`{"status":"1","message":"OK","result":[
				  {"blockNumber":"3","timeStamp":"1700000300","hash":"0xAAA","from":"0x42B9DF65B219B3DD36FF330A4DD8F327A6ADA990","to":"0x2","value":"1500000000000000000","isError":"0","txreceipt_status":"1"},
				  {"blockNumber":"2","timeStamp":"1700000200","hash":"0xbbb","from":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","to":"0x3","value":"0","isError":"1","txreceipt_status":"0"}
				]}`)
				return
			}
			ctx.SetBodyString(`{"status":"1","message":"OK","result":[
			  {"blockNumber":"2","timeStamp":"1700000200","hash":"0xBBB","from":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","to":"0x3","value":"0","isError":"1"}
			]}`)
		case "tokentx":
			if string(args.Peek("page")) != "1" {
				ctx.SetBodyString(noTxs)
				return
			}
			ctx.SetBodyString(`{"status":"1","message":"OK","result":[
			  {"timeStamp":"1700000200","hash":"0xbbb","from":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","to":"0x3","value":"2500000","contractAddress":"0xA0B8","tokenSymbol":"USDC","tokenDecimal":"6"},
			  {"timeStamp":"1700000100","hash":"0xccc","from":"0x9","to":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","value":"1000000000000000000","contractAddress":"0xD1","tokenSymbol":"DAI","tokenDecimal":"18"}
			]}`)
		case "tokennfttx":
			ctx.SetBodyString(noTxs)
		case "token1155tx":
			ctx.SetBodyString(`{"status":"1","message":"OK","result":[
			  {"timeStamp":"1700000300","hash":"0xaaa","from":"0x2","to":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","contractAddress":"0xE1","tokenName":"Items","tokenID":"5","tokenValue":"3"}
			]}`)
		}
	}, 2)

	txs, err := c.GetTransactions(context.Background(), testWallet, 1, entity.TransactionFilters{IncludeTokenTransfers: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txlistPages.Load() != 2 {
		t.Fatalf("expected 2 txlist pages, got %d", txlistPages.Load())
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	// Newest first by default.
	aaa, bbb, ccc := txs[0], txs[1], txs[2]
	if aaa.Hash != "0xaaa" || bbb.Hash != "0xbbb" || ccc.Hash != "0xccc" {
		t.Fatalf("unexpected order: %s %s %s", aaa.Hash, bbb.Hash, ccc.Hash)
	}
	if aaa.Status != "confirmed" || bbb.Status != "failed" {
		t.Fatalf("unexpected statuses: %s %s", aaa.Status, bbb.Status)
	}
	if len(aaa.Transfers) != 2 || aaa.Transfers[0].SymbolOrName != "ETH" || aaa.Transfers[0].Amount != "1.5" {
		t.Fatalf("unexpected native transfer: %+v", aaa.Transfers)
	}
	if nft := aaa.Transfers[1]; !nft.IsNFT || nft.Amount != "3" || *nft.TokenID != "5" || *nft.ContractAddress != "0xe1" {
		t.Fatalf("unexpected 1155 transfer: %+v", nft)
	}
	if len(bbb.Transfers) != 1 || bbb.Transfers[0].Amount != "2.5" || bbb.Transfers[0].Decimals != 6 {
		t.Fatalf("token transfer should attach to txlist entry: %+v", bbb.Transfers)
	}
	if ccc.Status != "confirmed" || len(ccc.Transfers) != 1 || ccc.Transfers[0].Amount != "1" || !ccc.MinedAt.Equal(time.Unix(1700000100, 0)) {
		t.Fatalf("unexpected transfer-only transaction: %+v", ccc)
	}
}

func TestGetTransactionsDropsRepeatedTransferRows(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		if string(args.Peek("action")) != "tokentx" {
			ctx.SetBodyString(noTxs)
			return
		}
		// A new transfer shifted the window, so page 2 repeats the last row of page 1.
		if string(args.Peek("page")) == "1" {
			ctx.SetBodyString(`{"status":"1","message":"OK","result":[
			  {"timeStamp":"1700000300","hash":"0xaaa","logIndex":"4","from":"0x9","to":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","value":"1000000","contractAddress":"0xA0B8","tokenSymbol":"USDC","tokenDecimal":"6"},
			  {"timeStamp":"1700000200","hash":"0xbbb","logIndex":"7","from":"0x9","to":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","value":"2000000","contractAddress":"0xA0B8","tokenSymbol":"USDC","tokenDecimal":"6"}
			]}`)
			return
		}
		ctx.SetBodyString(`{"status":"1","message":"OK","result":[
		  {"timeStamp":"1700000200","hash":"0xBBB","logIndex":"7","from":"0x9","to":"0x42b9df65b219b3dd36ff330a4dd8f327a6ada990","value":"2000000","contractAddress":"0xa0b8","tokenSymbol":"USDC","tokenDecimal":"6"}
		]}`)
	}, 2)

	txs, err := c.GetTransactions(context.Background(), testWallet, 1, entity.TransactionFilters{IncludeTokenTransfers: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		if len(tx.Transfers) != 1 {
			t.Fatalf("tx %s: expected 1 transfer, got %d", tx.Hash, len(tx.Transfers))
		}
	}
}

func TestTransferKeyKeepsDistinctLogs(t *testing.T) {
	t.Parallel()

	a, _ := transferKey(tokenTransfer{Hash: "0xaaa", LogIndex: "1", ContractAddress: "0xE1", TokenID: "5"})
	b, _ := transferKey(tokenTransfer{Hash: "0xaaa", LogIndex: "2", ContractAddress: "0xE1", TokenID: "5"})
	c, _ := transferKey(tokenTransfer{Hash: "0xAAA", LogIndex: "1", ContractAddress: "0xe1", TokenID: "5"})
	if a == b {
		t.Fatalf("different log indexes must not collide")
	}
	if a != c {
		t.Fatalf("key must ignore hex case: %s vs %s", a, c)
	}
	if _, ok := transferKey(tokenTransfer{}); ok {
		t.Fatalf("rows without a hash have no key")
	}
}

func TestGetTransactionsRetriesPayloadRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetBodyString(`{"status":"0","message":"NOTOK","result":"Max rate limit reached, please use API Key for higher rate limit"}`)
			return
		}
		ctx.SetBodyString(noTxs)
	}, 0)

	txs, err := c.GetTransactions(context.Background(), testWallet, 8453, entity.TransactionFilters{Sort: "asc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 0 || calls.Load() != 2 {
		t.Fatalf("expected empty history after one retry, got %d txs, %d calls", len(txs), calls.Load())
	}
}

func TestGetTransactionsApplicationErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetBodyString(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
	}, 0)

	_, err := c.GetTransactions(context.Background(), testWallet, 1, entity.TransactionFilters{})
	if entity.KindOf(err) != entity.KindApplication || calls.Load() != 1 {
		t.Fatalf("expected one non-retried application error, got %v after %d calls", err, calls.Load())
	}
}

func TestGetTransactionsUnsupportedChain(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {}, 0)
	_, err := c.GetTransactions(context.Background(), testWallet, 31337, entity.TransactionFilters{})
	if !errors.Is(err, entity.ErrUnsupportedChain) {
		t.Fatalf("expected unsupported chain, got %v", err)
	}
}

func TestCheckEnvelope(t *testing.T) {
	t.Parallel()

	if _, err := checkEnvelope(envelope{Status: "0", Message: "NOTOK", Result: []byte(`"Error! Invalid address format"`)}); entity.KindOf(err) != entity.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	raw, err := checkEnvelope(envelope{Status: "0", Message: noTransactionsMessage, Result: []byte(`[]`)})
	if err != nil || string(raw) != "[]" {
		t.Fatalf("no transactions should yield an empty page, got %s, %v", raw, err)
	}
	if _, err := checkEnvelope(envelope{Status: "0", Message: "NOTOK", Result: []byte(`"Max rate limit reached"`)}); !entity.IsRetryable(err) {
		t.Fatalf("payload rate limit must be retryable")
	}
}

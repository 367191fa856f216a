package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/cache"
)

func testRegistry(t *testing.T) *asset.Registry {
	t.Helper()
	reg := asset.NewRegistry()
	sol := &asset.Asset{Symbol: "SOL", Chain: "solana", Decimals: 9, Active: true}
	usdc := &asset.Asset{Symbol: "USDC", Chain: "solana", Decimals: 6, Active: true}
	require.NoError(t, reg.RegisterAsset(sol))
	require.NoError(t, reg.RegisterAsset(usdc))
	require.NoError(t, reg.RegisterPair(&asset.Pair{
		Symbol: "SOL/USDC", Base: sol, Quote: usdc,
		PriceTick: 10_000, LotStep: 100_000_000,
		MinOrderSize: 100_000_000, MaxOrderSize: 1_000_000_000_000, Active: true,
	}))
	return reg
}

func TestPollStoresPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SOL", r.URL.Query().Get("base"))
		require.Equal(t, "USDC", r.URL.Query().Get("quote"))
		fmt.Fprintf(w, `{"base":"SOL","quote":"USDC","price":"101.25"}`)
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "prices"), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	p := NewPoller(testRegistry(t), c, zap.NewNop().Sugar(), Options{BaseURL: srv.URL})
	p.pollOnce(context.Background())

	price, ok := c.Price("SOL/USDC")
	require.True(t, ok)
	require.Equal(t, int64(101_250_000), price)
}

func TestPollToleratesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "prices"), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	p := NewPoller(testRegistry(t), c, zap.NewNop().Sugar(), Options{BaseURL: srv.URL})
	p.pollOnce(context.Background())

	_, ok := c.Price("SOL/USDC")
	require.False(t, ok)
}

func TestPollRejectsBadPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"base":"SOL","quote":"USDC","price":"-5"}`)
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "prices"), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	p := NewPoller(testRegistry(t), c, zap.NewNop().Sugar(), Options{BaseURL: srv.URL})
	p.pollOnce(context.Background())

	_, ok := c.Price("SOL/USDC")
	require.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"base":"SOL","quote":"USDC","price":"100"}`)
	}))
	defer srv.Close()

	c, err := cache.Open(filepath.Join(t.TempDir(), "prices"), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	p := NewPoller(testRegistry(t), c, zap.NewNop().Sugar(), Options{BaseURL: srv.URL, Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

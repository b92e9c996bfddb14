// Command apyprobe logs the supply APY an Aave-style lending pool reports for an asset.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"axalportal/internal/chain"
	"axalportal/internal/config"
	"axalportal/internal/units"

	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultAsset = "0x6B175474E89094C44Da98b954EedeAC495271d0F" // DAI

func main() {
	listReserves := flag.Bool("list", false, "log every reserve the pool knows about")
	timeout := flag.Duration("timeout", 30*time.Second, "overall RPC timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.Chain.RPCURL == "" {
		log.Fatalf("config error: CHAIN_RPC_URL is required")
	}
	if cfg.Contracts.LendingPool == "" {
		log.Fatalf("config error: LENDING_POOL_ADDRESS is required")
	}

	asset := defaultAsset
	if flag.NArg() > 0 {
		asset = flag.Arg(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cli, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("dial rpc: %v", err)
	}
	defer cli.Close()

	pool, err := chain.NewPoolReader(cli, cfg.Contracts.LendingPool)
	if err != nil {
		log.Fatalf("lending pool: %v", err)
	}

	if *listReserves {
		reserves, err := pool.Reserves(ctx)
		if err != nil {
			log.Fatalf("list reserves: %v", err)
		}
		for _, r := range reserves {
			log.Printf("reserve %s", r.Hex())
		}
	}

	rate, err := pool.LiquidityRate(ctx, asset)
	if err != nil {
		log.Fatalf("reserve data: %v", err)
	}
	log.Printf("APY for %s: %s%%", asset, units.RayToPercent(rate).StringFixed(2))
}

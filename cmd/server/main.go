package main

import (
	"context"
	"errors"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"axalportal/internal/chain"
	"axalportal/internal/config"
	"axalportal/internal/idempotency"
	"axalportal/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	store, err := idempotency.Open(ctx, cfg.Service)
	if err != nil {
		log.Fatalf("idempotency store error: %v", err)
	}
	if closer, ok := store.(interface{ Close() }); ok {
		defer closer.Close()
	}

	var gw chain.Gateway
	if cfg.HasSigner() {
		ethGW, err := chain.NewEthGateway(ctx, chain.EthGatewayConfig{
			RPCURL:          cfg.Chain.RPCURL,
			PrivateKeyHex:   cfg.Chain.PrivateKey,
			BalanceContract: cfg.Contracts.Balance,
			ClaimContract:   cfg.Contracts.Claim,
			ClaimMethod:     cfg.Contracts.ClaimMethod,
			ChainID:         cfg.Chain.ChainID,
			PollInterval:    cfg.Chain.ReceiptPollInterval,
		})
		if err != nil {
			log.Fatalf("chain gateway error: %v", err)
		}
		defer ethGW.Close()
		log.Printf("signing claims as %s on chain %s", ethGW.Signer().Hex(), ethGW.ChainID())
		gw = ethGW
	} else {
		log.Printf("CHAIN_PRIVATE_KEY not set, using in-memory gateway")
		// Credit the fake with the same reward the page shows optimistically.
		reward := new(big.Int).Mul(big.NewInt(cfg.Portal.OptimisticIncrement), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
		gw = chain.NewFakeGateway(reward)
	}

	apiServer := server.NewServer(cfg, gw, store)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

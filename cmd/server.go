// Server = swap coordinator + chain readers + orderdb + http api.
// All components are configured via envionment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/api"
	"github.com/1foot-Labs/swapd/chainwatch"
	"github.com/1foot-Labs/swapd/coordinator"
	"github.com/1foot-Labs/swapd/escrow"
	"github.com/1foot-Labs/swapd/order"
	"github.com/1foot-Labs/swapd/pricing"
	"github.com/1foot-Labs/swapd/settlement"
	"github.com/1foot-Labs/swapd/signers"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	// how often each watch lane polls its escrow
	escrowPollInterval = 5 * time.Second
	// per-query deadline against the chain rpc
	chainQueryTimeout = 10 * time.Second
	// how often the expiry sweep runs
	expirySweepInterval = 15 * time.Second
	// default lifetime of a new order
	defaultOrderTTL = 24 * time.Hour
	// quote oracle deadline
	priceQueryTimeout = 5 * time.Second

	CHANNEL_BUFFER_SIZE = 10

	// funding only counts below this reorg depth
	btcConfirmationThreshold = 6
	ethConfirmationThreshold = 12
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type SwapServerConfig struct {
	// eth side
	EthRpcUrl string // json rpc url
	// orderdb side
	DbFilePath string // db file path
	// btc side
	BtcRpcServer   string           // btc rpc server info
	BtcRpcPort     string           // btc rpc server info
	BtcRpcUsername string           // btc rpc server info
	BtcRpcPwd      string           // btc rpc server info
	BtcChainConfig *chaincfg.Params // regtest, testnet, mainnet?
	BtcStartBlk    int64            // start block for the btc reader to scan (-1=latest, other=specific block)

	// payout side
	PayoutSignerPriv string // hex ecdsa key, empty = log-only signer

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080

	// pricing side
	PriceOracleUrl   string // empty = static rates only
	StaticRateBtcEth string // eth per btc, eg. "15"
	StaticRateEthBtc string // btc per eth, eg. "0.0666"
}

// SwapServer holds the objects that consists of the swap server.
type SwapServer struct {
	OrderDB     *order.OrderDB
	Registry    *order.Registry
	Coordinator *coordinator.Coordinator
	BtcReader   *chainwatch.BtcReader
	EthReader   *chainwatch.EthReader
	HttpServer  *api.Server
}

// NewSwapServer creates a new swap server.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for all the goroutines inside the server to finish.
func NewSwapServer(ssc *SwapServerConfig, ctx context.Context, wg *sync.WaitGroup) (*SwapServer, error) {
	// 0) connect to btc network
	btcReader, err := chainwatch.NewBtcReader(&chainwatch.BtcReaderConfig{
		ServerAddr: ssc.BtcRpcServer,
		Port:       ssc.BtcRpcPort,
		Username:   ssc.BtcRpcUsername,
		Pwd:        ssc.BtcRpcPwd,
	}, ssc.BtcChainConfig, ssc.BtcStartBlk)
	if err != nil {
		logger.Fatalf("cannot connect to btc rpc server with %s:%s, %v", ssc.BtcRpcServer, ssc.BtcRpcPort, err)
		return nil, err
	}

	// 1) connect to eth network
	ethReader, err := chainwatch.NewEthReader(ssc.EthRpcUrl)
	if err != nil {
		logger.Fatalf("cannot connect to eth rpc at %s, %v", ssc.EthRpcUrl, err)
		return nil, err
	}

	// 2) open the orderdb
	sqldb, err := sql.Open("sqlite3", ssc.DbFilePath)
	if err != nil {
		logger.Fatalf("failed to open db file: %v", err)
		return nil, err
	}
	orderDB, err := order.NewOrderDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create order db: %v", err)
		return nil, err
	}
	registry := order.NewRegistry(orderDB)

	// 3) payout signer: local key if configured, log-only otherwise
	var signer settlement.Signer
	if ssc.PayoutSignerPriv != "" {
		localSigner, err := signers.NewLocalPayoutSigner(ssc.PayoutSignerPriv)
		if err != nil {
			logger.Fatalf("failed to create payout signer: %v", err)
			return nil, err
		}
		signer = localSigner
	} else {
		signer = signers.NopPayoutSigner{}
	}

	// 4) the coordinator itself
	coord := coordinator.New(
		&coordinator.Config{
			PollInterval:  escrowPollInterval,
			QueryTimeout:  chainQueryTimeout,
			SweepInterval: expirySweepInterval,
			OrderTTL:      defaultOrderTTL,
			ChannelSize:   CHANNEL_BUFFER_SIZE,
			ConfirmationThresholds: map[order.ChainFamily]int64{
				order.ChainFamilyBtc: btcConfirmationThreshold,
				order.ChainFamilyEth: ethConfirmationThreshold,
			},
		},
		registry,
		escrow.NewLocator(ssc.BtcChainConfig),
		signer,
		map[order.ChainFamily]chainwatch.ChainReader{
			order.ChainFamilyBtc: btcReader,
			order.ChainFamilyEth: ethReader,
		},
	)

	// Important: turn on the coordinator loop!
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coord.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatalf("coordinator stopped: %v", err)
		}
	}()
	// Don't forget to call wg.Wait() in the main routine.

	// 5) the quoter
	quoter := pricing.NewQuoter(&pricing.Config{
		OracleURL:    ssc.PriceOracleUrl,
		QueryTimeout: priceQueryTimeout,
		StaticRates:  staticRates(ssc),
	})

	// *** Setup the http api server ***
	httpServer := api.NewServer(ssc.HttpIp, ssc.HttpPort, coord, quoter)
	// Turn on the http server
	go func() {
		if err := httpServer.Run(); err != nil {
			logger.Fatalf("http server stopped: %v", err)
		}
	}()

	// Give it some time to start the http server
	time.Sleep(1 * time.Second)
	// *** End the setup of http server ***

	return &SwapServer{
		OrderDB:     orderDB,
		Registry:    registry,
		Coordinator: coord,
		BtcReader:   btcReader,
		EthReader:   ethReader,
		HttpServer:  httpServer,
	}, nil
}

// Create, then start the swap server and wait.
// Press Ctrl-C to kill the server.
func StartSwapServerAndWait(ssc *SwapServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Launch a new goroutine to handle the signal
	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	_, err := NewSwapServer(ssc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create swap server: %v", err)
		return
	}

	// wait for all routines to finish
	wg.Wait()
}

// Helper function. Parse the static fallback rate table from config.
func staticRates(ssc *SwapServerConfig) map[order.Direction]decimal.Decimal {
	rates := make(map[order.Direction]decimal.Decimal)
	if r, err := decimal.NewFromString(ssc.StaticRateBtcEth); err == nil && r.Sign() > 0 {
		rates[order.DirectionBtcToEth] = r
	}
	if r, err := decimal.NewFromString(ssc.StaticRateEthBtc); err == nil && r.Sign() > 0 {
		rates[order.DirectionEthToBtc] = r
	}
	return rates
}

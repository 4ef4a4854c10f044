package main

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"

	"github.com/1foot-Labs/swapd/cmd"
	"github.com/1foot-Labs/swapd/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "SWAPD_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	switch viper.GetString("SWAPD_LOG") {
	case "debug":
		logconfig.ConfigDebugLogger()
	case "production":
		logconfig.ConfigProductionLogger()
	default:
		logconfig.ConfigInfoLogger()
	}

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Swap server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Swap server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	// Make the configuration
	ssc := PrepareSwapServerConfig()
	if ssc == nil {
		fmt.Printf("Error loading swap server configuration\n")
		return
	}

	fmt.Println("Starting swap server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartSwapServerAndWait(ssc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareSwapServerConfig reads configuration variables and returns a SwapServerConfig.
func PrepareSwapServerConfig() *cmd.SwapServerConfig {

	// *** prepare objects that aren't string type ***

	// Parse the BTC chain config (e.g., "regtest", "testnet", or "mainnet").
	var btcParams *chaincfg.Params
	switch viper.GetString("BTC_CHAIN_CONFIG") {
	case "testnet":
		btcParams = &chaincfg.TestNet3Params
	case "mainnet":
		btcParams = &chaincfg.MainNetParams
	case "regtest":
		btcParams = &chaincfg.RegressionNetParams
	default:
		// default to regtest
		btcParams = &chaincfg.RegressionNetParams
	}

	// *** end of preparing objects ***

	return &cmd.SwapServerConfig{
		// eth side
		EthRpcUrl: viper.GetString("ETH_RPC_URL"),
		// orderdb side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// btc side
		BtcRpcServer:   viper.GetString("BTC_RPC_SERVER"),
		BtcRpcPort:     viper.GetString("BTC_RPC_PORT"),
		BtcRpcUsername: viper.GetString("BTC_RPC_USERNAME"),
		BtcRpcPwd:      viper.GetString("BTC_RPC_PWD"),
		BtcChainConfig: btcParams,
		BtcStartBlk:    viper.GetInt64("BTC_START_BLK"),
		// payout side
		PayoutSignerPriv: viper.GetString("PAYOUT_SIGNER_PRIV"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
		// pricing side
		PriceOracleUrl:   viper.GetString("PRICE_ORACLE_URL"),
		StaticRateBtcEth: viper.GetString("STATIC_RATE_BTC_ETH"),
		StaticRateEthBtc: viper.GetString("STATIC_RATE_ETH_BTC"),
	}
}

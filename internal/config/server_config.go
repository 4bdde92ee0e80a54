package config

import (
	"github/chapool/go-hardware-signer/internal/util"
)

// EchoServer holds the HTTP listener configuration
type EchoServer struct {
	ListenAddress                  string
	HideInternalServerErrorDetails bool
}

// Logger holds the zerolog configuration
type Logger struct {
	Level              string
	RequestLevel       string
	PrettyPrintConsole bool
}

// Hardware holds the device transport configuration
type Hardware struct {
	// BridgeOrigin is the local bridge daemon serving the popup-RPC vendors
	BridgeOrigin string
	// DeviceOrigin is the local APDU proxy serving the Ledger-style vendors
	DeviceOrigin string
	// BitcoinNetwork selects the chain params: mainnet, testnet3 or regtest
	BitcoinNetwork string
	// DefaultEVMChainID is used when a request does not carry a chain id
	DefaultEVMChainID int64
}

// Server is the aggregated service configuration, filled from ENV
type Server struct {
	Echo     EchoServer
	Logger   Logger
	Hardware Hardware
}

// DefaultServiceConfigFromEnv returns the server config as defined by the
// currently active ENV, with sane development defaults
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Echo: EchoServer{
			ListenAddress:                  util.GetEnv("SERVER_ECHO_LISTEN_ADDRESS", ":8080"),
			HideInternalServerErrorDetails: util.GetEnvAsBool("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERROR_DETAILS", true),
		},
		Logger: Logger{
			Level:              util.GetEnv("SERVER_LOGGER_LEVEL", "info"),
			RequestLevel:       util.GetEnv("SERVER_LOGGER_REQUEST_LEVEL", "debug"),
			PrettyPrintConsole: util.GetEnvAsBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		Hardware: Hardware{
			BridgeOrigin:      util.GetEnv("SERVER_HARDWARE_BRIDGE_ORIGIN", "http://127.0.0.1:21325"),
			DeviceOrigin:      util.GetEnv("SERVER_HARDWARE_DEVICE_ORIGIN", "http://127.0.0.1:9998"),
			BitcoinNetwork:    util.GetEnv("SERVER_HARDWARE_BITCOIN_NETWORK", "mainnet"),
			DefaultEVMChainID: util.GetEnvAsInt64("SERVER_HARDWARE_DEFAULT_EVM_CHAIN_ID", 1),
		},
	}
}

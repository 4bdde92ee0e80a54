package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/router"
	"github/chapool/go-hardware-signer/internal/config"
	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/registry"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

const shutdownTimeout = 30 * time.Second

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the server",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// variants is the closed set of chain/vendor combinations the service exposes
var variants = [][2]string{
	{string(hardware.ChainBitcoin), string(hardware.VendorTrezor)},
	{string(hardware.ChainEthereum), string(hardware.VendorTrezor)},
	{string(hardware.ChainEthereum), string(hardware.VendorLedger)},
	{string(hardware.ChainSolana), string(hardware.VendorLedger)},
}

func runServer() {
	cfg := config.DefaultServiceConfigFromEnv()

	applyLoggerConfig(cfg.Logger)

	drivers, err := buildDrivers(cfg.Hardware)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build hardware drivers")
	}

	s := api.NewServer(cfg, drivers)
	router.Init(s)

	go func() {
		if err := s.Start(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Info().Msg("Server closed")
			} else {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if errs := s.Shutdown(ctx); len(errs) > 0 {
		log.Fatal().Errs("errs", errs).Msg("Failed to gracefully shut down server")
	}
}

func applyLoggerConfig(cfg config.Logger) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Err(err).Str("level", cfg.Level).Msg("Unknown log level, falling back to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = "15:04:05"
		}))
	}
}

func buildDrivers(cfg config.Hardware) (*registry.Set, error) {
	params, err := bitcoinParams(cfg.BitcoinNetwork)
	if err != nil {
		return nil, err
	}

	set := registry.NewSet()
	for _, variant := range variants {
		// each driver owns its transport exclusively; a shared instance
		// would let one driver's Close or Init clobber another's session
		driver, err := registry.New(hardware.Chain(variant[0]), hardware.Vendor(variant[1]), registry.Options{
			Bridge:        transport.NewHTTPBridge(cfg.BridgeOrigin),
			Device:        transport.NewHTTPDevice(cfg.DeviceOrigin),
			BitcoinParams: params,
		})
		if err != nil {
			return nil, err
		}
		set.Register(driver)
	}

	return set, nil
}

func bitcoinParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errors.New("unknown bitcoin network: " + network)
	}
}

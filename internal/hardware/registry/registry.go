// Package registry constructs and holds the closed set of chain/vendor
// driver variants
package registry

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/ledger"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
	"github/chapool/go-hardware-signer/internal/hardware/trezor"
)

// Options carries the transports and chain parameters drivers are built
// from. Bridge serves the bridge-family vendors, Device the APDU family.
type Options struct {
	Bridge        transport.Bridge
	Device        transport.Device
	BitcoinParams *chaincfg.Params
}

// New builds the driver for a (chain, vendor) variant. The variant set is
// closed; anything outside it fails with the invalid-network sentinel.
//
//nolint:ireturn
func New(chain hardware.Chain, vendor hardware.Vendor, opts Options) (hardware.Driver, error) {
	switch {
	case chain == hardware.ChainBitcoin && vendor == hardware.VendorTrezor:
		if opts.Bridge == nil {
			return nil, errors.New("bridge transport required")
		}
		return trezor.NewBitcoinDriver(opts.Bridge, opts.BitcoinParams), nil

	case chain == hardware.ChainEthereum && vendor == hardware.VendorTrezor:
		if opts.Bridge == nil {
			return nil, errors.New("bridge transport required")
		}
		return trezor.NewEVMDriver(opts.Bridge), nil

	case chain == hardware.ChainEthereum && vendor == hardware.VendorLedger:
		if opts.Device == nil {
			return nil, errors.New("apdu transport required")
		}
		return ledger.NewEVMDriver(opts.Device), nil

	case chain == hardware.ChainSolana && vendor == hardware.VendorLedger:
		if opts.Device == nil {
			return nil, errors.New("apdu transport required")
		}
		return ledger.NewSolanaDriver(opts.Device), nil

	default:
		return nil, errors.Wrapf(hardware.ErrInvalidNetwork, "no driver for chain %s vendor %s", chain, vendor)
	}
}

type key struct {
	Chain  hardware.Chain
	Vendor hardware.Vendor
}

// Set holds one driver per registered variant
type Set struct {
	drivers map[key]hardware.Driver
}

// NewSet builds an empty set
func NewSet() *Set {
	return &Set{drivers: make(map[key]hardware.Driver)}
}

// Register adds a driver, replacing any previous driver of the same variant
func (s *Set) Register(driver hardware.Driver) {
	s.drivers[key{driver.Chain(), driver.Vendor()}] = driver
}

// Driver looks up the driver of a variant
//
//nolint:ireturn
func (s *Set) Driver(chain hardware.Chain, vendor hardware.Vendor) (hardware.Driver, error) {
	driver, ok := s.drivers[key{chain, vendor}]
	if !ok {
		return nil, errors.Wrapf(hardware.ErrInvalidNetwork, "no driver for chain %s vendor %s", chain, vendor)
	}
	return driver, nil
}

// Variants lists the registered (chain, vendor) pairs
func (s *Set) Variants() [][2]string {
	out := make([][2]string, 0, len(s.drivers))
	for k := range s.drivers {
		out = append(out, [2]string{string(k.Chain), string(k.Vendor)})
	}
	return out
}

// CloseAll releases every registered driver, keeping the first error
func (s *Set) CloseAll(ctx context.Context) error {
	var firstErr error
	for _, driver := range s.drivers {
		if err := driver.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

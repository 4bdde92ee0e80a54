// Package pathcatalog 维护各链和设备厂商支持的派生路径模板
package pathcatalog

import (
	"github/chapool/go-hardware-signer/internal/hardware"
)

type key struct {
	Chain  hardware.Chain
	Vendor hardware.Vendor
}

var catalog = map[key][]hardware.PathType{
	{hardware.ChainBitcoin, hardware.VendorTrezor}: {
		// legacy P2PKH
		{BasePath: "m/44'/0'/0'/0", Path: "m/44'/0'/0'/0/{index}"},
		// native segwit P2WPKH
		{BasePath: "m/84'/0'/0'/0", Path: "m/84'/0'/0'/0/{index}"},
	},
	{hardware.ChainEthereum, hardware.VendorTrezor}: {
		{BasePath: "m/44'/60'/0'/0", Path: "m/44'/60'/0'/0/{index}"},
	},
	{hardware.ChainEthereum, hardware.VendorLedger}: {
		// BIP44 standard
		{BasePath: "m/44'/60'/0'/0", Path: "m/44'/60'/0'/0/{index}"},
		// Ledger Live legacy scheme, index at the account level
		{BasePath: "m/44'/60'/0'", Path: "m/44'/60'/0'/{index}"},
	},
	{hardware.ChainSolana, hardware.VendorLedger}: {
		{BasePath: "m/44'/501'", Path: "m/44'/501'/{index}'"},
	},
}

// Paths 返回指定链和厂商支持的派生路径模板列表
func Paths(chain hardware.Chain, vendor hardware.Vendor) []hardware.PathType {
	entries, ok := catalog[key{chain, vendor}]
	if !ok {
		return []hardware.PathType{}
	}
	out := make([]hardware.PathType, len(entries))
	copy(out, entries)
	return out
}

// Contains 判断路径模板是否在指定链和厂商的目录中
func Contains(chain hardware.Chain, vendor hardware.Vendor, pathType hardware.PathType) bool {
	for _, entry := range catalog[key{chain, vendor}] {
		if entry == pathType {
			return true
		}
	}
	return false
}

package utxo

import (
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-chaincfg"
	base58 "github.com/bsv-blockchain/go-sdk/compat/base58"
	hash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

const (
	mainnetPubKeyHashVersion byte = 0x00
	mainnetScriptHashVersion byte = 0x05
	testnetPubKeyHashVersion byte = 0x6f
	testnetScriptHashVersion byte = 0xc4
)

// AddressFromScript derives the address a locking script pays. Only pay-to-pubkey-hash,
// pay-to-script-hash and pay-to-pubkey scripts have one; anything else returns false.
// Pay-to-pubkey outputs are indexed under the pubkey hash address.
func AddressFromScript(script *bscript.Script, params *chaincfg.Params) (string, bool) {
	if script == nil || len(*script) == 0 {
		return "", false
	}

	b := []byte(*script)

	pubKeyHashVersion, scriptHashVersion := mainnetPubKeyHashVersion, mainnetScriptHashVersion
	if params != nil && params.Name != "mainnet" {
		pubKeyHashVersion, scriptHashVersion = testnetPubKeyHashVersion, testnetScriptHashVersion
	}

	switch {
	case script.IsP2PKH():
		return encodeAddress(pubKeyHashVersion, b[3:23]), true
	case script.IsP2SH():
		return encodeAddress(scriptHashVersion, b[2:22]), true
	case script.IsP2PK():
		// <push len> <pubkey> OP_CHECKSIG
		n := int(b[0])
		if len(b) != n+2 {
			return "", false
		}

		return encodeAddress(pubKeyHashVersion, hash.Hash160(b[1:1+n])), true
	}

	return "", false
}

func encodeAddress(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+4)
	buf = append(buf, version)
	buf = append(buf, payload...)

	checksum := hash.Sha256d(buf)

	return base58.Encode(append(buf, checksum[:4]...))
}

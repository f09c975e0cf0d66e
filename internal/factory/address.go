package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP-1167 creation code around the 20 byte implementation address
	minimalProxyPrefix = common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	minimalProxySuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")

	// Beacon proxy creation code around the 20 byte beacon address. The runtime asks the
	// beacon for its implementation and delegates to it.
	beaconProxyPrefix = common.FromHex("0x6055600c60003960556000f3363d3d373d3d3d3d635c60da1b60e01b3d52602060003d73")
	beaconProxySuffix = common.FromHex("0x5afa503d5160203d3d373d3d363d855af43d82803e903d91605357fd5bf3")
)

// MinimalProxyCode returns the creation code of a minimal proxy delegating to impl
func MinimalProxyCode(impl common.Address) []byte {
	return wrapAddress(minimalProxyPrefix, impl, minimalProxySuffix)
}

// BeaconProxyCode returns the creation code of a proxy resolving its implementation through beacon
func BeaconProxyCode(beacon common.Address) []byte {
	return wrapAddress(beaconProxyPrefix, beacon, beaconProxySuffix)
}

func wrapAddress(prefix []byte, addr common.Address, suffix []byte) []byte {
	code := make([]byte, 0, len(prefix)+common.AddressLength+len(suffix))
	code = append(code, prefix...)
	code = append(code, addr.Bytes()...)
	return append(code, suffix...)
}

// SaltHash mixes the deployer (and, when includePayload is set, the init payload) into the salt:
// keccak256(salt ++ deployer [++ initPayload])
func SaltHash(salt common.Hash, deployer common.Address, initPayload []byte, includePayload bool) common.Hash {
	if includePayload {
		return crypto.Keccak256Hash(salt.Bytes(), deployer.Bytes(), initPayload)
	}
	return crypto.Keccak256Hash(salt.Bytes(), deployer.Bytes())
}

// ComputeAddress returns the CREATE2 address a factory deploys to:
// keccak256(0xff ++ factory ++ SaltHash(...) ++ codeHash)[12:].
// Minimal proxy factories leave the payload out of the salt hash, beacon proxy factories include it.
func ComputeAddress(factory common.Address, salt common.Hash, deployer common.Address, initPayload []byte, codeHash common.Hash, includePayload bool) common.Address {
	return crypto.CreateAddress2(factory, SaltHash(salt, deployer, initPayload, includePayload), codeHash.Bytes())
}

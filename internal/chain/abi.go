package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// marketABIJSON is the ABI of the CarMarket contract as currently deployed.
// The item tuple carries a stored settlement txHash as its ninth field.
const marketABIJSON = `[
  {"type":"event","name":"ItemListed","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":false},
    {"name":"make","type":"string","indexed":false},
    {"name":"model","type":"string","indexed":false},
    {"name":"year","type":"uint16","indexed":false},
    {"name":"price","type":"uint256","indexed":false},
    {"name":"seller","type":"address","indexed":false}]},
  {"type":"event","name":"ItemPurchased","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":false},
    {"name":"buyer","type":"address","indexed":false},
    {"name":"price","type":"uint256","indexed":false}]},
  {"type":"function","name":"listItem","stateMutability":"nonpayable","inputs":[
    {"name":"_make","type":"string"},
    {"name":"_model","type":"string"},
    {"name":"_year","type":"uint16"},
    {"name":"_price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"purchaseItem","stateMutability":"payable","inputs":[
    {"name":"_id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getItem","stateMutability":"view","inputs":[
    {"name":"_id","type":"uint256"}],"outputs":[
    {"name":"","type":"tuple","components":[
      {"name":"id","type":"uint256"},
      {"name":"make","type":"string"},
      {"name":"model","type":"string"},
      {"name":"year","type":"uint16"},
      {"name":"price","type":"uint256"},
      {"name":"seller","type":"address"},
      {"name":"buyer","type":"address"},
      {"name":"sold","type":"bool"},
      {"name":"txHash","type":"bytes32"}]}]},
  {"type":"function","name":"getAllItems","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"tuple[]","components":[
      {"name":"id","type":"uint256"},
      {"name":"make","type":"string"},
      {"name":"model","type":"string"},
      {"name":"year","type":"uint16"},
      {"name":"price","type":"uint256"},
      {"name":"seller","type":"address"},
      {"name":"buyer","type":"address"},
      {"name":"sold","type":"bool"},
      {"name":"txHash","type":"bytes32"}]}]},
  {"type":"function","name":"itemCount","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"uint256"}]}
]`

// legacyABIJSON matches earlier contract revisions whose item tuple has no
// stored txHash field. Reads fall back to this layout when decoding with
// the current ABI fails; the settlement hash is then backfilled from the
// local receipt store instead.
const legacyABIJSON = `[
  {"type":"function","name":"getItem","stateMutability":"view","inputs":[
    {"name":"_id","type":"uint256"}],"outputs":[
    {"name":"","type":"tuple","components":[
      {"name":"id","type":"uint256"},
      {"name":"make","type":"string"},
      {"name":"model","type":"string"},
      {"name":"year","type":"uint16"},
      {"name":"price","type":"uint256"},
      {"name":"seller","type":"address"},
      {"name":"buyer","type":"address"},
      {"name":"sold","type":"bool"}]}]},
  {"type":"function","name":"getAllItems","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"tuple[]","components":[
      {"name":"id","type":"uint256"},
      {"name":"make","type":"string"},
      {"name":"model","type":"string"},
      {"name":"year","type":"uint16"},
      {"name":"price","type":"uint256"},
      {"name":"seller","type":"address"},
      {"name":"buyer","type":"address"},
      {"name":"sold","type":"bool"}]}]}
]`

var (
	abiOnce   sync.Once
	marketABI abi.ABI
	legacyABI abi.ABI
	abiErr    error
)

// loadABIs parses both ABI revisions exactly once.
func loadABIs() error {
	abiOnce.Do(func() {
		marketABI, abiErr = abi.JSON(strings.NewReader(marketABIJSON))
		if abiErr != nil {
			return
		}
		legacyABI, abiErr = abi.JSON(strings.NewReader(legacyABIJSON))
	})
	return abiErr
}

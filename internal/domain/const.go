package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// SYSTEM_SUPER_USER is the account the child chain uses to deliver state-sync messages
	SYSTEM_SUPER_USER = "0xffffFFFfFFffffffffffffffFfFFFfffFFFfFFfE"

	// Bridge constants
	DEFAULT_MAX_TOKENS_PER_TX = 20

	// Collection token id layout: high bits hold the item id, low bits the issued sequence number
	ITEM_ID_BITS   = 40
	ISSUED_ID_BITS = 216
)

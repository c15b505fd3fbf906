package errors

// ERR is the numeric error code carried by every Error.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4
	ERR_CONTEXT_CANCELED ERR = 5
	ERR_ERROR            ERR = 6

	ERR_BLOCK_NOT_FOUND      ERR = 10
	ERR_BLOCK_INVALID        ERR = 11
	ERR_BLOCK_EXISTS         ERR = 12
	ERR_PREV_BLOCK_NOT_FOUND ERR = 13
	ERR_INVALID_POW          ERR = 14
	ERR_INVALID_DIFFICULTY   ERR = 15
	ERR_MISSING_COINBASE     ERR = 16
	ERR_COINBASE_TOO_LARGE   ERR = 17

	ERR_TX_NOT_FOUND            ERR = 30
	ERR_TX_INVALID              ERR = 31
	ERR_TX_INVALID_DOUBLE_SPEND ERR = 32
	ERR_TX_ALREADY_EXISTS       ERR = 33

	ERR_NO_OUTPUTS      ERR = 40
	ERR_WALLET_REQUIRED ERR = 41

	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_SERVICE_ERROR       ERR = 51
	ERR_STORAGE_UNAVAILABLE ERR = 60
	ERR_STORAGE_ERROR       ERR = 61
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "NOT_FOUND",
	3:  "PROCESSING",
	4:  "CONFIGURATION",
	5:  "CONTEXT_CANCELED",
	6:  "ERROR",
	10: "BLOCK_NOT_FOUND",
	11: "BLOCK_INVALID",
	12: "BLOCK_EXISTS",
	13: "PREV_BLOCK_NOT_FOUND",
	14: "INVALID_POW",
	15: "INVALID_DIFFICULTY",
	16: "MISSING_COINBASE",
	17: "COINBASE_TOO_LARGE",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	32: "TX_INVALID_DOUBLE_SPEND",
	33: "TX_ALREADY_EXISTS",
	40: "NO_OUTPUTS",
	41: "WALLET_REQUIRED",
	50: "SERVICE_UNAVAILABLE",
	51: "SERVICE_ERROR",
	60: "STORAGE_UNAVAILABLE",
	61: "STORAGE_ERROR",
}

func (c ERR) String() string {
	if name, ok := ERR_name[int32(c)]; ok {
		return name
	}

	return "UNKNOWN"
}

package state

var (
	orderPrefix       = []byte("market/order/")
	tokenFlagsPrefix  = []byte("market/token/")
	ordersDisabledKey = []byte("market/orders-disabled")
	feeScheduleKey    = []byte("market/fee-schedule")
	adminKey          = []byte("market/admin")
	balancePrefix     = []byte("bank/balance/")
	genesisKey        = []byte("meta/genesis")
)

func prefixed(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func orderKey(id [32]byte) []byte { return prefixed(orderPrefix, id[:]) }

func tokenFlagsKey(contract [20]byte) []byte { return prefixed(tokenFlagsPrefix, contract[:]) }

func balanceKey(addr [20]byte) []byte { return prefixed(balancePrefix, addr[:]) }

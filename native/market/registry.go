package market

import (
	"nftmarket/native/fees"
)

// RegisterToken allows contract to be listed on the marketplace. Order
// creation for a newly registered contract starts enabled.
func (e *Engine) RegisterToken(caller, contract [20]byte) error {
	return e.execute("register_token", 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		if contract == ([20]byte{}) {
			return newError(ErrValidation, c.op, "contract address required")
		}
		flags, err := c.tx.TokenFlagsGet(contract)
		if err != nil {
			return err
		}
		if flags.Registered {
			return newError(ErrRegistry, c.op, "contract %s already registered", formatContract(contract))
		}
		if err := c.tx.TokenFlagsPut(contract, TokenFlags{Registered: true, OrdersEnabled: true}); err != nil {
			return err
		}
		c.emit(NewTokenRegisteredEvent(contract))
		return nil
	})
}

// EnableTokenOrders re-allows order creation for a registered contract.
func (e *Engine) EnableTokenOrders(caller, contract [20]byte) error {
	return e.setTokenOrders("enable_token_orders", caller, contract, true)
}

// DisableTokenOrders stops new orders for contract. Open orders are unaffected.
func (e *Engine) DisableTokenOrders(caller, contract [20]byte) error {
	return e.setTokenOrders("disable_token_orders", caller, contract, false)
}

func (e *Engine) setTokenOrders(op string, caller, contract [20]byte, enabled bool) error {
	return e.execute(op, 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		flags, err := c.tx.TokenFlagsGet(contract)
		if err != nil {
			return err
		}
		if !flags.Registered {
			return newError(ErrRegistry, c.op, "contract %s not registered", formatContract(contract))
		}
		if flags.OrdersEnabled == enabled {
			return newError(ErrRegistry, c.op, "orders for %s already %s", formatContract(contract), enabledWord(enabled))
		}
		flags.OrdersEnabled = enabled
		if err := c.tx.TokenFlagsPut(contract, flags); err != nil {
			return err
		}
		c.emit(NewTokenOrdersToggledEvent(contract, enabled))
		return nil
	})
}

// EnableOrders re-allows order creation marketplace wide.
func (e *Engine) EnableOrders(caller [20]byte) error {
	return e.setOrders("enable_orders", caller, true)
}

// DisableOrders stops new orders marketplace wide. Bidding, buying,
// cancelling and completing open orders keep working.
func (e *Engine) DisableOrders(caller [20]byte) error {
	return e.setOrders("disable_orders", caller, false)
}

func (e *Engine) setOrders(op string, caller [20]byte, enabled bool) error {
	return e.execute(op, 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		disabled, err := c.tx.OrdersDisabledGet()
		if err != nil {
			return err
		}
		if disabled != enabled {
			return newError(ErrRegistry, c.op, "orders already %s", enabledWord(enabled))
		}
		if err := c.tx.OrdersDisabledPut(!enabled); err != nil {
			return err
		}
		c.emit(NewOrdersToggledEvent(enabled))
		return nil
	})
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// SetMarketFee changes the platform fee fraction. The new rate applies to
// every settlement from now on, including orders listed before the change.
func (e *Engine) SetMarketFee(caller [20]byte, numerator, denominator uint64) error {
	if err := fees.ValidateRate(numerator, denominator); err != nil {
		return wrapError(ErrValidation, "set_market_fee", err, "invalid fee")
	}
	return e.execute("set_market_fee", 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		schedule, err := c.feeSchedule()
		if err != nil {
			return err
		}
		schedule.Numerator = numerator
		schedule.Denominator = denominator
		if err := c.tx.FeeSchedulePut(schedule); err != nil {
			return err
		}
		c.emit(NewFeeChangedEvent(numerator, denominator))
		return nil
	})
}

// SetMarketFeeCollector reroutes fee payments to collector.
func (e *Engine) SetMarketFeeCollector(caller, collector [20]byte) error {
	if collector == ([20]byte{}) {
		return wrapError(ErrValidation, "set_market_fee_collector", fees.ErrCollectorRequired, "invalid collector")
	}
	return e.execute("set_market_fee_collector", 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		schedule, err := c.feeSchedule()
		if err != nil {
			return err
		}
		schedule.Collector = collector
		if err := c.tx.FeeSchedulePut(schedule); err != nil {
			return err
		}
		c.emit(NewFeeCollectorChangedEvent(collector))
		return nil
	})
}

// SetAdmin hands the admin role over to next. The fee schedule is pinned
// first so a collector defaulting to the old admin keeps receiving fees.
func (e *Engine) SetAdmin(caller, next [20]byte) error {
	if next == ([20]byte{}) {
		return newError(ErrValidation, "set_admin", "admin address required")
	}
	return e.execute("set_admin", 1, func(c *opContext) error {
		if err := c.requireAdmin(caller); err != nil {
			return err
		}
		schedule, err := c.feeSchedule()
		if err != nil {
			return err
		}
		if err := c.tx.FeeSchedulePut(schedule); err != nil {
			return err
		}
		if err := c.tx.AdminPut(next); err != nil {
			return err
		}
		c.emit(NewAdminChangedEvent(caller, next))
		return nil
	})
}

// GetTokenFlags reports the registry status of contract.
func (e *Engine) GetTokenFlags(contract [20]byte) (TokenFlags, error) {
	var flags TokenFlags
	err := e.view(func(tx StateTx) error {
		var err error
		flags, err = tx.TokenFlagsGet(contract)
		return err
	})
	return flags, err
}

// OrdersEnabled reports the global order creation switch.
func (e *Engine) OrdersEnabled() (bool, error) {
	var disabled bool
	err := e.view(func(tx StateTx) error {
		var err error
		disabled, err = tx.OrdersDisabledGet()
		return err
	})
	return !disabled, err
}

// FeeSchedule returns the active fee schedule.
func (e *Engine) FeeSchedule() (fees.Schedule, error) {
	var schedule fees.Schedule
	err := e.view(func(tx StateTx) error {
		var err error
		schedule, err = loadFeeSchedule(tx)
		return err
	})
	return schedule, err
}

// Admin returns the current admin address.
func (e *Engine) Admin() ([20]byte, error) {
	var admin [20]byte
	err := e.view(func(tx StateTx) error {
		var err error
		admin, err = tx.AdminGet()
		return err
	})
	return admin, err
}

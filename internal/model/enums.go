package model

// DrawdownType members.
const (
	DrawdownTrailing = "TRAILING"
	DrawdownStatic   = "STATIC"
	DrawdownEOD      = "EOD"
	DrawdownHybrid   = "HYBRID"
)

// PayoutFrequency members.
const (
	PayoutWeekly   = "WEEKLY"
	PayoutBiweekly = "BIWEEKLY"
	PayoutMonthly  = "MONTHLY"
	PayoutOnDemand = "ON_DEMAND"
)

// Platform members.
const (
	PlatformMT4         = "MT4"
	PlatformMT5         = "MT5"
	PlatformCTrader     = "CTRADER"
	PlatformNinjaTrader = "NINJA_TRADER"
	PlatformTradingView = "TRADING_VIEW"
	PlatformProprietary = "PROPRIETARY"
	PlatformMultiple    = "MULTIPLE"
	PlatformUnknown     = "UNKNOWN"
)

// Broker members.
const (
	BrokerPurpleTrading = "PURPLE_TRADING"
	BrokerEightcap      = "EIGHTCAP"
	BrokerMatchTrader   = "MATCH_TRADER"
	BrokerTopstep       = "TOPSTEP"
	BrokerRithmic       = "RITHMIC"
	BrokerCQG           = "CQG"
	BrokerTradovate     = "TRADOVATE"
	BrokerMultiple      = "MULTIPLE"
	BrokerUnknown       = "UNKNOWN"
)

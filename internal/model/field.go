package model

// Field is a canonical column of the trading rule schema.
type Field string

const (
	AccountSize        Field = "account_size"
	EvalTarget         Field = "evaluation_target"
	EvalMaxDrawdown    Field = "evaluation_max_drawdown"
	EvalDailyLoss      Field = "evaluation_daily_loss"
	EvalDrawdownType   Field = "evaluation_drawdown_type"
	EvalMinDays        Field = "evaluation_min_days"
	EvalConsistency    Field = "evaluation_consistency"
	FundedMaxDrawdown  Field = "funded_max_drawdown"
	FundedDailyLoss    Field = "funded_daily_loss"
	FundedDrawdownType Field = "funded_drawdown_type"
	ProfitSplit        Field = "profit_split"
	PayoutFrequency    Field = "payout_frequency"
	MinPayout          Field = "min_payout"
	EvalFee            Field = "evaluation_fee"
	ResetFee           Field = "reset_fee"
	Platform           Field = "platform"
	Broker             Field = "broker"
)

// Parser selects how the raw text of a field is normalized.
type Parser int

const (
	ParseMoney Parser = iota
	// ParseLimit accepts either an amount or a percentage. Percentages are relative to the
	// account size.
	ParseLimit
	ParsePercent
	ParseInteger
	ParseBool
	ParseDrawdownType
	ParsePayoutFrequency
	ParsePlatform
	ParseBroker
)

type FieldSpec struct {
	Field  Field
	Title  string
	Parser Parser
}

// Fields lists the schema in column order. Matchers, resolution and export all follow it.
var Fields = []FieldSpec{
	{AccountSize, "Account Size", ParseMoney},
	{EvalTarget, "Evaluation Target", ParseLimit},
	{EvalMaxDrawdown, "Evaluation Max Drawdown", ParseLimit},
	{EvalDailyLoss, "Evaluation Daily Loss", ParseLimit},
	{EvalDrawdownType, "Evaluation Drawdown Type", ParseDrawdownType},
	{EvalMinDays, "Evaluation Min Days", ParseInteger},
	{EvalConsistency, "Evaluation Consistency", ParseBool},
	{FundedMaxDrawdown, "Funded Max Drawdown", ParseLimit},
	{FundedDailyLoss, "Funded Daily Loss", ParseLimit},
	{FundedDrawdownType, "Funded Drawdown Type", ParseDrawdownType},
	{ProfitSplit, "Profit Split (%)", ParsePercent},
	{PayoutFrequency, "Payout Frequency", ParsePayoutFrequency},
	{MinPayout, "Min Payout", ParseMoney},
	{EvalFee, "Evaluation Fee", ParseMoney},
	{ResetFee, "Reset Fee", ParseMoney},
	{Platform, "Platform", ParsePlatform},
	{Broker, "Broker", ParseBroker},
}

// MinimumViable are the fields whose presence makes an extraction usable.
var MinimumViable = []Field{AccountSize, EvalTarget, EvalMaxDrawdown}

func SpecOf(f Field) (FieldSpec, bool) {
	for _, s := range Fields {
		if s.Field == f {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Order returns the column position of f, or len(Fields) for unknown fields.
func (f Field) Order() int {
	for i, s := range Fields {
		if s.Field == f {
			return i
		}
	}
	return len(Fields)
}

func (f Field) Valid() bool {
	return f.Order() < len(Fields)
}

// PageLevel is the block index of candidates found outside every detected block.
const PageLevel = -1

// FieldCandidate is an unnormalized value found by one extraction rule.
type FieldCandidate struct {
	Field   Field  `json:"field"`
	Raw     string `json:"raw"`
	Context string `json:"context"`
	Method  Method `json:"method"`
	Block   int    `json:"block"`
	Rule    string `json:"rule"`
	// Priority is the position of the rule in its field matcher, lower wins.
	Priority int `json:"priority"`
	Offset   int `json:"offset"`
}

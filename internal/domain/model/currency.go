package model

type Currency string

const (
	USD Currency = "USD"
	INR Currency = "INR"
)

// TrackedPair is the only pair the tracker converts: savings goals are set in
// USD and displayed in INR.
var TrackedPair = CurrencyPair{BaseCurrency: USD, TargetCurrency: INR}

func (c Currency) String() string {
	return string(c)
}

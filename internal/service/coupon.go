package service

// CustomerHistory is what coupon rules may look at.
type CustomerHistory struct {
	PriorBookings int
}

// CouponRule describes one coupon: who may use it and what it does to the
// slot price.
type CouponRule struct {
	Code     string
	Eligible func(CustomerHistory) bool
	Apply    func(price int64) int64
}

// CouponTable maps a coupon code to its rule.  Codes are matched exactly.
type CouponTable map[string]CouponRule

// CodeWelcome10 gives first-time customers 10% off.
const CodeWelcome10 = "WELCOME10"

// DefaultCoupons returns the coupons the ground currently offers.
func DefaultCoupons() CouponTable {
	return NewCouponTable(CouponRule{
		Code:     CodeWelcome10,
		Eligible: func(h CustomerHistory) bool { return h.PriorBookings == 0 },
		Apply:    percentOff(10),
	})
}

// NewCouponTable indexes rules by code.
func NewCouponTable(rules ...CouponRule) CouponTable {
	t := make(CouponTable, len(rules))
	for _, r := range rules {
		t[r.Code] = r
	}
	return t
}

// Lookup returns the rule registered for code.
func (t CouponTable) Lookup(code string) (CouponRule, bool) {
	r, ok := t[code]
	return r, ok
}

// percentOff rounds down to whole rupees.
func percentOff(pct int64) func(int64) int64 {
	return func(price int64) int64 { return price * (100 - pct) / 100 }
}

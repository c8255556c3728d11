package flow

// Policy switches parts of the phosphorus accounting on or off. The
// phosphorus model is incomplete, so both switches are off by default: the
// supply factor for phosphorus is held at 1 and an unmet phosphorus
// immobilisation demand is not reported.
type Policy struct {
	// PhosphorusConstraint lets labile phosphorus supply limit the flow the
	// same way mineral nitrogen does.
	PhosphorusConstraint bool

	// PhosphorusMassBalanceCheck fails the flow when labile phosphorus cannot
	// cover the immobilisation demand of a layer.
	PhosphorusMassBalanceCheck bool
}

// DefaultPolicy is the policy used by flows that do not set one.
var DefaultPolicy = Policy{
	PhosphorusConstraint:       false,
	PhosphorusMassBalanceCheck: false,
}

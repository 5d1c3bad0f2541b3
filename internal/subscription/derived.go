package subscription

// Derive projects snapshots into the three flow predicates.
// A comparison involving an unresolved amount is false.
func Derive(s Snapshots) DerivedState {
	fee := s.Fee.Value
	if !s.Fee.Resolved {
		fee = nil
	}

	var d DerivedState
	if fee != nil && s.Balance.Resolved && s.Balance.Value != nil {
		d.HasSufficientBalance = s.Balance.Value.Cmp(fee) >= 0
	}
	if fee != nil && s.Allowance.Resolved && s.Allowance.Value != nil {
		d.HasSufficientAllowance = s.Allowance.Value.Cmp(fee) >= 0
	}
	d.IsEntitled = s.Entitlement.Resolved && s.Entitlement.Value
	return d
}

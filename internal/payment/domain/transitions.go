package domain

// allowedTransitions is the status state machine. The key is the current
// status, the value the set of statuses it may move to. Refunded and
// canceled are dead ends: a canceled attendance gets a brand-new payment
// row, never a revived one.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusReceived, StatusFailed, StatusCompleted, StatusRefunded, StatusWaived, StatusCanceled},
	StatusPaid:      {StatusCompleted, StatusRefunded},
	StatusReceived:  {StatusCompleted},
	StatusFailed:    {StatusPending},
	StatusCompleted: {StatusRefunded},
	StatusRefunded:  {},
	StatusWaived:    {StatusCompleted},
	StatusCanceled:  {},
}

// CanTransition reports whether from -> to is allowed for the method.
// A processor payment never becomes received (that is the cash
// confirmation state) and a cash payment never becomes paid.
func CanTransition(method Method, from, to Status) bool {
	if method == MethodProcessor && to == StatusReceived {
		return false
	}
	if method == MethodCash && to == StatusPaid {
		return false
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error naming both states if the
// transition is not allowed.
func ValidateTransition(method Method, from, to Status) error {
	if !CanTransition(method, from, to) {
		return &InvalidTransitionError{Method: method, From: from, To: to}
	}
	return nil
}

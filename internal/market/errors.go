package market

// Fault is a validation error with a stable name the transport layer keys on
// to separate client mistakes (400) from server faults (500).
type Fault struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (f *Fault) Error() string {
	return f.Name + ": " + f.Message
}

var (
	ErrInvalidCurrencyCode = &Fault{Name: "InvalidCurrencyCode", Message: "currency code is not registered"}
	ErrUserNotFound        = &Fault{Name: "UserNotFound", Message: "user id does not resolve"}
	ErrAlertNotFound       = &Fault{Name: "AlertNotFound", Message: "no such alert for this user and currency"}
	ErrInvalidAlert        = &Fault{Name: "InvalidAlert", Message: "alert target rate must be positive"}

	// ErrNoData reports an empty series; surfaced as an absent rate rather
	// than a client error.
	ErrNoData = &Fault{Name: "NoData", Message: "no rate ticks recorded for this currency"}
)

// Package domain defines core data structures used throughout the position tracker.
package domain

// Account is an external ledger address. The empty value means no
// authenticated account.
type Account string

// IsZero reports whether no account is set.
func (a Account) IsZero() bool {
	return a == ""
}

// String returns the raw address string.
func (a Account) String() string {
	return string(a)
}

// Short returns a shortened representation suitable for display,
// e.g. "0x1234...abcd".
func (a Account) Short() string {
	s := string(a)
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

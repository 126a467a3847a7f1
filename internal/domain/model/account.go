package model

// AccountID identifies a stored credential record. IDs are assigned from a
// monotonically increasing counter and are never reused.
type AccountID uint64

// UserID is the opaque handle of the user that owns a set of accounts.
type UserID string

// Account holds one website credential. Username and Password are plaintext
// at the domain boundary; the application layer encodes them at rest.
type Account struct {
	ID       AccountID `json:"id"`
	UserID   UserID    `json:"user_id"`
	Website  string    `json:"website"`
	Username string    `json:"username"`
	Password string    `json:"password"`
}

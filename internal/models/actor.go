package models

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

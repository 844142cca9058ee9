package model

// UserRole comes from the access token; accounts themselves live in the
// identity service.
type UserRole string

const (
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

package profiles

import "time"

// Profile is the denormalized client record returned by the backend client
// service. It is cached by the session manager and replaced wholesale on
// refresh; partial updates go through the backend, never through this type.
type Profile struct {
	ID        int64     `json:"id,omitempty"`        // Backend-assigned client identifier
	FirstName string    `json:"firstName,omitempty"` // First name of the client
	LastName  string    `json:"lastName,omitempty"`  // Last name of the client
	Email     string    `json:"email,omitempty"`     // Client's email address
	Phone     string    `json:"phone,omitempty"`     // Contact phone number
	Address   string    `json:"address,omitempty"`   // Postal address
	CIN       string    `json:"cin,omitempty"`       // National identity card number
	Role      string    `json:"role,omitempty"`      // Backend role (e.g. "CLIENT")
	CreatedAt time.Time `json:"createdAt,omitempty"` // When the client registered
}

// FullName returns the display name for the client.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

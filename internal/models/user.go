package models

const (
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Driver is an authenticated user of the dispatch API (drivers and dispatch admins)
type Driver struct {
	ID        string  `json:"id" db:"id"`
	Email     string  `json:"email" db:"email"`
	Password  string  `json:"-" db:"password"` // Never return password in JSON
	Name      string  `json:"name" db:"name"`
	Phone     *string `json:"phone,omitempty" db:"phone"`
	Role      string  `json:"role" db:"role"`
	FCMToken  *string `json:"-" db:"fcm_token"`
	CreatedAt int64   `json:"created_at" db:"created_at"`
	UpdatedAt int64   `json:"updated_at" db:"updated_at"`
}

type DriverResponse struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
	Role  string  `json:"role"`
}

func (d *Driver) ToDriverResponse() DriverResponse {
	return DriverResponse{
		ID:    d.ID,
		Email: d.Email,
		Name:  d.Name,
		Phone: d.Phone,
		Role:  d.Role,
	}
}

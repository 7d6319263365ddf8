package domain

// Role — роль пользователя, пришедшая из токена.
type Role string

const (
	RoleUser         Role = "user"
	RoleAdmin        Role = "admin"
	RoleReceptionist Role = "receptionist"
)

// Actor — кто выполняет операцию.
type Actor struct {
	UserID string
	Role   Role
}

// IsStaff сообщает, относится ли актор к персоналу отеля (admin или receptionist).
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleReceptionist
}

// CanAccess проверяет, что актор владеет записью или относится к персоналу.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsStaff() || (a.UserID != "" && a.UserID == ownerID)
}

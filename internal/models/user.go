package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// UserModel represents a registered account. Admins manage the catalog and
// read analytics; customers browse tiles and generate interaction events.
type UserModel struct {
	Base
	Username      string     `json:"username"  gorm:"uniqueIndex;not null"`
	Email         string     `json:"email"     gorm:"uniqueIndex;not null"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar"`
	Password      string     `json:"-"         gorm:"not null"`
	Role          string     `json:"role"      gorm:"type:varchar(16);default:customer;index"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`
}

func (UserModel) TableName() string { return "users" }

// IsAdmin reports whether the account has the admin role.
func (u *UserModel) IsAdmin() bool { return u.Role == RoleAdmin }

package models

// ContactModel stores a message submitted through the public contact form.
type ContactModel struct {
	Base
	Name    string `json:"name"    gorm:"not null"`
	Email   string `json:"email"   gorm:"not null;index"`
	Subject string `json:"subject"`
	Body    string `json:"body"    gorm:"type:text;not null"`
	Read    bool   `json:"read"    gorm:"default:false"`
}

func (ContactModel) TableName() string { return "contacts" }

package models

import "time"

// User is a registered account allowed to manage the catalogue.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string    `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password  string    `json:"password,omitempty" gorm:"type:varchar(255)" validate:"required,min=6"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

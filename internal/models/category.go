package models

import "time"

// Category groups products. Products reference it through category_id.
type Category struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null" validate:"required,min=2,max=100"`
	Description string    `json:"description" validate:"omitempty,max=500"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

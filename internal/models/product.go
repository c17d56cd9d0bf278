package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a sellable item in the store.
type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	CategoryID  uint            `json:"category_id" gorm:"not null;index"`
	Category    *Category       `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Description *string         `json:"description"`
	UnitInStock int             `json:"unit_in_stock" gorm:"not null;default:0"`
	Picture     *string         `json:"picture" gorm:"type:varchar(255)"`
	PictureURL  *string         `json:"pictureUrl" gorm:"-"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// ProductChanges is the set of writable fields applied by an update.
// Picture replaces the stored picture when non-nil; ClearPicture removes it.
// With neither set the current picture is kept. Description is written only
// when DescriptionSet is true, so a nil Description with the flag set clears it.
type ProductChanges struct {
	CategoryID     uint
	Name           string
	Price          decimal.Decimal
	Description    *string
	DescriptionSet bool
	UnitInStock    int
	Picture        *string
	ClearPicture   bool
}

package models

// TileModel is one catalog entry: a tile product with an optional AR model
// that customers can preview and place in their own space.
type TileModel struct {
	Base
	Name        string  `json:"name"         gorm:"not null"`
	Slug        string  `json:"slug"         gorm:"uniqueIndex;not null"`
	Description string  `json:"description"  gorm:"type:text"`
	Category    string  `json:"category"     gorm:"index"`
	Material    string  `json:"material"`
	SizeLabel   string  `json:"size"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"     gorm:"type:varchar(8);default:USD"`
	Images      []Image `json:"images"       gorm:"serializer:json;type:longtext"`
	ARModelURL  string  `json:"ar_model_url"`
	InStock     bool    `json:"in_stock"     gorm:"default:true"`
}

func (TileModel) TableName() string { return "tiles" }

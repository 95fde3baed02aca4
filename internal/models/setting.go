package models

// Setting is a generic key/value pair.
type Setting struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Key   string `json:"key" gorm:"type:varchar(100);uniqueIndex;not null"`
	Value string `json:"value" gorm:"type:varchar(255);not null"`
}

func (Setting) TableName() string {
	return "settings"
}

package models

import "gorm.io/gorm"

// Setting is a tenant-level key/value store consulted by the outreach
// engine (mail-provider list overrides, thresholds).
type Setting struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// GetSetting returns the stored value or "" when the key is absent.
func GetSetting(db *gorm.DB, key string) (string, error) {
	var s Setting
	err := db.Where("key = ?", key).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

package models

import "time"

// DeviceSetting is a key/value row in the device-local store.
type DeviceSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeviceSetting) TableName() string { return "device_settings" }

package model

type SyncKV struct {
	Key       string `gorm:"column:key;type:text;primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt *int64 `gorm:"column:expires_at"`
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (SyncKV) TableName() string {
	return "sync_kv"
}

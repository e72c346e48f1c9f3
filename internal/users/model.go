package users

import "time"

// User captures an account that owns thoughts. The application bootstraps a
// single user at startup; the schema still carries ordinary account fields so
// additional users can be introduced without a migration.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

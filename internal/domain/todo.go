package domain

import "time"

// DefaultUserID is the owner recorded by the schema when a row is written
// without one.
const DefaultUserID = "none"

// MaxUserIDLength mirrors the varchar(256) width of todos.user_id.
const MaxUserIDLength = 256

type Todo struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"type:text;not null"`
	Completed   bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	LastUpdated time.Time `gorm:"column:last_updated;not null"`
	UserID      string    `gorm:"column:user_id;size:256;not null"`
}

func (Todo) TableName() string { return "todos" }

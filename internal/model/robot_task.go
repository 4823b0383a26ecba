package model

import "time"

// RobotTaskState is the last observed status of a robot task log row.
type RobotTaskState struct {
	LogID       int64      `gorm:"primaryKey;autoIncrement:false"`
	TaskName    string     `gorm:"size:128;not null"`
	PiStatus    string     `gorm:"size:32;not null"`
	UnityStatus string     `gorm:"size:32;not null"`
	Message     string     `gorm:"not null"`
	ObservedAt  time.Time  `gorm:"not null"`
	FinishedAt  *time.Time `gorm:"index"`
}

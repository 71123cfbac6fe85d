package model

import "time"

// FileRecord points at an uploaded file under the session's storage root.
// The physical file may disappear out-of-band; readers must tolerate that.
type FileRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"size:128;not null;uniqueIndex:idx_files_session_name,priority:1" json:"sessionId"`
	Filename   string    `gorm:"size:255;not null;uniqueIndex:idx_files_session_name,priority:2" json:"name"`
	Filepath   string    `gorm:"size:1024;not null" json:"path"`
	Size       int64     `gorm:"not null" json:"size"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploadedAt"`
}

func (FileRecord) TableName() string {
	return "files"
}

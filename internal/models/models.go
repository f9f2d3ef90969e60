package models

import (
	"time"

	"gorm.io/gorm"
)

// Request status values shared by movie requests and IP access requests
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusUploaded = "uploaded"
)

// Movie request types
const (
	RequestTypeMovie  = "movie"
	RequestTypeSeries = "series"
)

// User represents the users table. Deleting a user is a soft delete.
type User struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string         `gorm:"size:80;uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time      `json:"created_at"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Movie represents the movies table; a series episode is a movie with IsSeries set
type Movie struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title              string    `gorm:"size:200;not null" json:"title"`
	Description        string    `gorm:"type:text" json:"description,omitempty"`
	Genre              string    `gorm:"size:100" json:"genre,omitempty"`
	Duration           int       `json:"duration,omitempty"` // minutes
	ReleaseYear        int       `json:"release_year,omitempty"`
	VideoFile          string    `gorm:"size:300;not null" json:"video_file"`
	ThumbnailFile      string    `gorm:"size:300" json:"thumbnail_file,omitempty"`
	AutoGeneratedThumb bool      `gorm:"default:false" json:"auto_generated_thumb"`
	IsSeries           bool      `gorm:"default:false;index" json:"is_series"`
	SeriesName         string    `gorm:"size:200;index" json:"series_name,omitempty"`
	SeasonNumber       int       `json:"season_number,omitempty"`
	EpisodeNumber      int       `json:"episode_number,omitempty"`
	EpisodeTitle       string    `gorm:"size:200" json:"episode_title,omitempty"`
	UploadedBy         *int64    `json:"uploaded_by,omitempty"`
	UploadedAt         time.Time `gorm:"index" json:"uploaded_at"`
}

func (Movie) TableName() string {
	return "movies"
}

// HasThumbnail reports whether the movie references a thumbnail image
func (m *Movie) HasThumbnail() bool {
	return m.ThumbnailFile != ""
}

// MovieRequest represents the movie_requests table
type MovieRequest struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	User           *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	RequestType    string     `gorm:"size:50;default:movie" json:"request_type"`
	Genre          string     `gorm:"size:100" json:"genre,omitempty"`
	ReleaseYear    int        `json:"release_year,omitempty"`
	SeriesName     string     `gorm:"size:200" json:"series_name,omitempty"`
	SeasonNumber   int        `json:"season_number,omitempty"`
	EpisodeNumber  int        `json:"episode_number,omitempty"`
	IMDbLink       string     `gorm:"column:imdb_link;size:300" json:"imdb_link,omitempty"`
	AdditionalInfo string     `gorm:"type:text" json:"additional_info,omitempty"`
	Status         string     `gorm:"size:50;default:pending;index" json:"status"`
	AdminNotes     string     `gorm:"type:text" json:"admin_notes,omitempty"`
	RequestedAt    time.Time  `gorm:"index" json:"requested_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	ProcessedBy    *int64     `json:"processed_by,omitempty"`
}

func (MovieRequest) TableName() string {
	return "movie_requests"
}

// IPWhitelistEntry represents the ip_whitelist table
type IPWhitelistEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IPAddress   string    `gorm:"size:45;uniqueIndex;not null" json:"ip_address"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	AddedBy     *int64    `json:"added_by,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
}

func (IPWhitelistEntry) TableName() string {
	return "ip_whitelist"
}

// IPAccessRequest represents the ip_access_requests table
type IPAccessRequest struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	IPAddress   string     `gorm:"size:45;index;not null" json:"ip_address"`
	Name        string     `gorm:"size:100" json:"name"`
	Reason      string     `gorm:"type:text" json:"reason"`
	Status      string     `gorm:"size:50;default:pending;index" json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ProcessedBy *int64     `json:"processed_by,omitempty"`
}

func (IPAccessRequest) TableName() string {
	return "ip_access_requests"
}

// AccessLogEntry represents the append-only access_log table
type AccessLogEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     *int64    `gorm:"index" json:"user_id,omitempty"`
	IPAddress  string    `gorm:"size:45;index" json:"ip_address"`
	Action     string    `gorm:"size:200" json:"action"`
	Success    bool      `json:"success"`
	AccessTime time.Time `gorm:"index" json:"access_time"`
}

func (AccessLogEntry) TableName() string {
	return "access_log"
}

// AdminAccessLog represents the append-only admin_access_log table
type AdminAccessLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     *int64    `gorm:"index" json:"user_id,omitempty"`
	IPAddress  string    `gorm:"size:45" json:"ip_address"`
	Action     string    `gorm:"size:200" json:"action"`
	Success    bool      `json:"success"`
	AccessTime time.Time `gorm:"index" json:"access_time"`
}

func (AdminAccessLog) TableName() string {
	return "admin_access_log"
}

// Series is a derived view over movies sharing a series name
type Series struct {
	Name          string    `json:"name"`
	EpisodeCount  int64     `json:"episode_count"`
	SeasonCount   int64     `json:"season_count"`
	ThumbnailFile string    `json:"thumbnail_file,omitempty"`
	LatestUpload  time.Time `json:"latest_upload"`
}

// All returns every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Movie{},
		&MovieRequest{},
		&IPWhitelistEntry{},
		&IPAccessRequest{},
		&AccessLogEntry{},
		&AdminAccessLog{},
	}
}

package domain

import "time"

// Media загруженный пользователем файл
type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ObjectKey    string    `json:"-"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

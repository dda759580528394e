package domain

import "time"

// SearchPost проекция публикации для полнотекстового поиска
type SearchPost struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

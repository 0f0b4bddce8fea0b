package domain

type Board struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"isPublic"`
	Owner       string `json:"owner,omitempty"`
}

type Comment struct {
	ID        ID         `json:"id"`
	TaskID    ID         `json:"taskId"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	CreatedAt *Timestamp `json:"createdAt,omitempty"`
}

// ChatMessage is one line of the board-wide chat.
type ChatMessage struct {
	Username string     `json:"username"`
	Message  string     `json:"message"`
	SentAt   *Timestamp `json:"timestamp,omitempty"`
}

package models

import "time"

// Conversation is the single messaging thread between a student and the
// admin team. One conversation per student.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	StudentRead   bool      `db:"student_read" json:"student_read"`
	AdminRead     bool      `db:"admin_read" json:"admin_read"`
}

// ConversationDetail adds the student's name for listings.
type ConversationDetail struct {
	Conversation
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
}

// SenderType identifies which side of a conversation sent a message.
type SenderType string

const (
	SenderStudent SenderType = "student"
	SenderAdmin   SenderType = "admin"
)

// Message is a single message within a conversation.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	Sender         SenderType `db:"sender" json:"sender"`
	SenderUserID   *string    `db:"sender_user_id" json:"sender_user_id,omitempty"`
	Body           string     `db:"body" json:"body"`
	SentAt         time.Time  `db:"sent_at" json:"sent_at"`
}

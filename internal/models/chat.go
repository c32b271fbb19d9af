package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation represents a chat conversation. Direct conversations hold the
// normalized participant pair in PairKey (self-conversations use the same id
// twice); group conversations carry a name and any number of members.
type Conversation struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	IsGroup      bool           `gorm:"default:false" json:"is_group"`
	Name         string         `json:"name"` // group conversations only
	Avatar       string         `json:"avatar"`
	CreatedBy    uint           `json:"created_by"`
	PairKey      *string        `gorm:"uniqueIndex" json:"-"` // direct conversations only
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Participants []User         `gorm:"many2many:conversation_members;" json:"participants,omitempty"`
	Messages     []Message      `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	UnseenCount  int            `gorm:"-" json:"unseen_count"`
}

// ConversationMember is the join table tracking membership and the per-user
// seen marker.
type ConversationMember struct {
	ConversationID uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// Message represents a chat message. Seq is the server-assigned position
// within the conversation; it, not the client clock, defines message order.
// Once IsRecalled is set the content fields are cleared and stay empty.
// DeletedForAll tombstones the message out of everyone's history.
type Message struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ConversationID uint              `gorm:"not null;index:idx_messages_conv_seq" json:"conversation_id"`
	Seq            uint64            `gorm:"not null;index:idx_messages_conv_seq" json:"seq"`
	SenderID       uint              `gorm:"not null;index" json:"sender_id"`
	Sender         *User             `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Text           string            `gorm:"type:text" json:"text"`
	ImageURL       string            `json:"image_url"`
	VideoURL       string            `json:"video_url"`
	FileURL        string            `json:"file_url"`
	FileName       string            `json:"file_name"`
	ReplyToID      *uint             `json:"reply_to_id,omitempty"`
	IsRecalled     bool              `gorm:"default:false" json:"is_recalled"`
	DeletedForAll  bool              `gorm:"default:false" json:"deleted_for_all"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Reactions      []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

// HasContent reports whether the message carries any text or media.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.ImageURL != "" || m.VideoURL != "" || m.FileURL != ""
}

// ClearContent empties every content field. Used by recall; irreversible at
// the storage level because the original values are overwritten.
func (m *Message) ClearContent() {
	m.Text = ""
	m.ImageURL = ""
	m.VideoURL = ""
	m.FileURL = ""
	m.FileName = ""
}

// MessageReaction is a user's emoji reaction to a message. The composite
// primary key enforces at most one reaction per user per message.
type MessageReaction struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	Emoji     string    `gorm:"not null" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageHide records a per-user "delete for me". The other participant's
// view is unaffected.
type MessageHide struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

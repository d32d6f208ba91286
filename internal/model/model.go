package model

import (
	"slices"
	"strings"
	"time"
)

// MessageType classifies a message as user chat or a system narration of a
// conversation change.
type MessageType string

const (
	MessageTypeText      MessageType = "TEXT"
	MessageTypeThumb     MessageType = "UP_THUMB"
	MessageTypeInfo      MessageType = "UP_INFO"
	MessageTypeAddMember MessageType = "UP_ADD_MEMBER"
	MessageTypeRmMember  MessageType = "UP_RM_MEMBER"
	MessageTypeLeave     MessageType = "UP_LEAVE"
	MessageTypeAddAdmin  MessageType = "UP_ADD_ADMIN"
)

// IsSystem returns true for generated membership/info/thumb narrations.
func (t MessageType) IsSystem() bool {
	return t != "" && t != MessageTypeText
}

// MaxConversationNameLength bounds group names.
const MaxConversationNameLength = 50

// Conversation is a direct (two party) or group channel.
type Conversation struct {
	ID            string    `json:"id"                      gorm:"primaryKey"`
	Name          string    `json:"name,omitempty"          gorm:"not null;default:''"`
	IsGroup       bool      `json:"isGroup"                 gorm:"not null"`
	Members       []string  `json:"members"                 gorm:"type:jsonb;serializer:json;not null"`
	Admins        []string  `json:"admins"                  gorm:"type:jsonb;serializer:json;not null"`
	Thumb         string    `json:"thumb,omitempty"         gorm:"not null;default:''"`
	DirectKey     *string   `json:"-"                       gorm:"uniqueIndex"`
	LastMessageID string    `json:"lastMessageId,omitempty" gorm:"not null;default:''"`
	MessageCount  int64     `json:"messageCount"            gorm:"not null;default:0"`
	LastMessageAt time.Time `json:"lastMessageAt"           gorm:"not null"`
	CreatedAt     time.Time `json:"createdAt"               gorm:"not null"`
	UpdatedAt     time.Time `json:"updatedAt"               gorm:"not null"`
}

func (Conversation) TableName() string { return "conversations" }

// HasMember returns true if userID is a current member.
func (c *Conversation) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// HasAdmin returns true if userID is a current admin.
func (c *Conversation) HasAdmin(userID string) bool {
	return slices.Contains(c.Admins, userID)
}

// IsSoleAdmin returns true if userID is the only admin.
func (c *Conversation) IsSoleAdmin(userID string) bool {
	return len(c.Admins) == 1 && c.Admins[0] == userID
}

// DirectKey returns the storage key that identifies the direct conversation
// between two users regardless of argument order.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Message is a chat or system message belonging to a conversation.
type Message struct {
	ID             string      `json:"id"                gorm:"primaryKey"`
	ConversationID string      `json:"conversationId"    gorm:"not null;index:idx_messages_conversation,priority:1"`
	Sender         string      `json:"sender"            gorm:"not null"`
	Content        string      `json:"content,omitempty" gorm:"not null;default:''"`
	Images         []string    `json:"images,omitempty"  gorm:"type:jsonb;serializer:json;not null"`
	Type           MessageType `json:"type"              gorm:"not null"`
	SeenUsers      []string    `json:"seenUsers"         gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt      time.Time   `json:"createdAt"         gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// HasSeen returns true if userID already acknowledged this message.
func (m *Message) HasSeen(userID string) bool {
	return slices.Contains(m.SeenUsers, userID)
}

// Profile is the public part of a user record.
type Profile struct {
	ID        string `json:"id"               gorm:"primaryKey"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

func (Profile) TableName() string { return "users" }

// DisplayName returns the name shown in system messages.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		return name
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

// MessageView is a message with its sender resolved.
type MessageView struct {
	Message
	SenderProfile *Profile `json:"senderProfile,omitempty"`
}

// ConversationView is a conversation with member profiles and the latest
// message resolved. Messages is only populated on request.
type ConversationView struct {
	Conversation
	Profiles    []Profile     `json:"profiles"`
	LastMessage *MessageView  `json:"lastMessage,omitempty"`
	Messages    []MessageView `json:"messages,omitempty"`
}

// MessagePage is one page of history in descending id order.
type MessagePage struct {
	Messages   []MessageView `json:"messages"`
	NextCursor *string       `json:"nextCursor"`
}

// MessageSearchResult holds the matches of a content search and the window
// centered on the most recent match.
type MessageSearchResult struct {
	Matches    []MessageView `json:"matches"`
	Count      int           `json:"count"`
	Window     []MessageView `json:"window"`
	NextCursor *string       `json:"nextCursor"`
}

// MediaItem is an image URL or link projected out of a message.
type MediaItem struct {
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names published on the fanout bridge.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventMessageNew         = "message:new"
	EventMessageUpdate      = "message:update"
	EventMessageTyping      = "message:typing"
)

// ConversationTag selects the shape of a conversation:update payload.
type ConversationTag string

const (
	TagNewMessage        ConversationTag = "NEW_MESSAGE"
	TagSeen              ConversationTag = "SEEN"
	TagUpdateThumb       ConversationTag = "UPDATE_THUMB"
	TagUpdateInfo        ConversationTag = "UPDATE_INFO"
	TagAddMembers        ConversationTag = "ADD_MEMBERS"
	TagRemoveMembers     ConversationTag = "REMOVE_MEMBERS"
	TagLeaveConversation ConversationTag = "LEAVE_CONVERSATION"
	TagIsLeave           ConversationTag = "IS_LEAVE_CONVERSATION"
	TagUpdateAdmins      ConversationTag = "UPDATE_ADMINS"
)

// LastMessageData is carried by NEW_MESSAGE and SEEN updates.
type LastMessageData struct {
	LastMessage MessageView `json:"lastMessage"`
}

// ThumbData is carried by UPDATE_THUMB.
type ThumbData struct {
	Thumb string `json:"thumb"`
}

// InfoData is carried by UPDATE_INFO.
type InfoData struct {
	Name string `json:"name"`
}

// MembersData is carried by ADD_MEMBERS, REMOVE_MEMBERS and LEAVE_CONVERSATION.
type MembersData struct {
	Members []string `json:"members"`
}

// AdminsData is carried by UPDATE_ADMINS.
type AdminsData struct {
	Admins []string `json:"admins"`
}

// LeftData is carried by IS_LEAVE_CONVERSATION to the departing user.
type LeftData struct{}

// ConversationUpdate is the conversation:update payload. Data holds one of
// the *Data types above, selected by Tag.
type ConversationUpdate struct {
	Tag            ConversationTag
	ConversationID string
	Data           any
}

type conversationUpdateWire struct {
	Tag            ConversationTag `json:"tag"`
	ConversationID string          `json:"conversationId"`
	Data           json.RawMessage `json:"data"`
}

func (u ConversationUpdate) MarshalJSON() ([]byte, error) {
	data := u.Data
	if data == nil {
		data = LeftData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(conversationUpdateWire{Tag: u.Tag, ConversationID: u.ConversationID, Data: raw})
}

func (u *ConversationUpdate) UnmarshalJSON(b []byte) error {
	var wire conversationUpdateWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	var data any
	switch wire.Tag {
	case TagNewMessage, TagSeen:
		data = &LastMessageData{}
	case TagUpdateThumb:
		data = &ThumbData{}
	case TagUpdateInfo:
		data = &InfoData{}
	case TagAddMembers, TagRemoveMembers, TagLeaveConversation:
		data = &MembersData{}
	case TagUpdateAdmins:
		data = &AdminsData{}
	case TagIsLeave:
		data = &LeftData{}
	default:
		return fmt.Errorf("unknown conversation update tag %q", wire.Tag)
	}
	if len(wire.Data) > 0 && string(wire.Data) != "null" {
		if err := json.Unmarshal(wire.Data, data); err != nil {
			return fmt.Errorf("decode %s payload: %w", wire.Tag, err)
		}
	}
	u.Tag = wire.Tag
	u.ConversationID = wire.ConversationID
	u.Data = derefData(data)
	return nil
}

func derefData(v any) any {
	switch d := v.(type) {
	case *LastMessageData:
		return *d
	case *ThumbData:
		return *d
	case *InfoData:
		return *d
	case *MembersData:
		return *d
	case *AdminsData:
		return *d
	case *LeftData:
		return *d
	}
	return v
}

// DecodeConversationUpdate decodes a conversation:update payload on its tag.
func DecodeConversationUpdate(raw []byte) (ConversationUpdate, error) {
	var u ConversationUpdate
	err := json.Unmarshal(raw, &u)
	return u, err
}

// MessageUpdateData is the message:update payload.
type MessageUpdateData struct {
	Message MessageView `json:"message"`
}

// TypingData is the message:typing payload.
type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// Envelope is the unit carried by fanout transports.
type Envelope struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

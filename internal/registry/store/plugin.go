package store

import (
	"context"
	"fmt"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
)

// Access selects the membership a conversation lookup requires.
type Access int

const (
	AccessMember Access = iota
	AccessAdmin
)

// ListConversationsQuery filters a member's conversation list.
type ListConversationsQuery struct {
	// NameContains is matched literally and case-insensitively against the name.
	NameContains string
	// Limit caps the result; zero means no limit.
	Limit int
}

// MessageQuery selects a window of a conversation's messages by id range.
type MessageQuery struct {
	ConversationID string
	// Before keeps ids strictly less than the cursor.
	Before string
	// AtOrAfter keeps ids greater than or equal to the cursor.
	AtOrAfter string
	// Ascending orders the window oldest first; the default is newest first.
	Ascending bool
	// Contains is matched literally and case-insensitively against content.
	Contains string
	Limit    int
}

// Store is the document storage contract for conversations and messages.
// Every method that changes members, admins, thumb or seen users is a single
// atomic conditional update.
type Store interface {
	// CreateConversation inserts c. A duplicate direct pair yields a ConflictError.
	CreateConversation(ctx context.Context, c *model.Conversation) error
	// FindDirectConversation returns the direct conversation between a and b
	// in either order, or a NotFoundError.
	FindDirectConversation(ctx context.Context, a, b string) (*model.Conversation, error)
	// GetConversation returns the conversation when userID holds access,
	// otherwise a NotFoundError.
	GetConversation(ctx context.Context, conversationID, userID string, access Access) (*model.Conversation, error)
	// ListConversations returns the user's conversations, most recently active first.
	ListConversations(ctx context.Context, userID string, query ListConversationsQuery) ([]model.Conversation, error)
	// MutateConversation applies m atomically when its precondition holds and
	// returns the document before and after. ErrNoMatch is returned otherwise.
	MutateConversation(ctx context.Context, conversationID string, m Mutation) (before, after *model.Conversation, err error)
	// RecordMessage bumps last-message bookkeeping in one update.
	RecordMessage(ctx context.Context, conversationID, messageID string, at time.Time) error

	InsertMessage(ctx context.Context, m *model.Message) error
	// GetMessage returns a NotFoundError when the message is not in the conversation.
	GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error)
	// LatestMessage returns nil without error for an empty conversation.
	LatestMessage(ctx context.Context, conversationID string) (*model.Message, error)
	ListMessages(ctx context.Context, query MessageQuery) ([]model.Message, error)
	// AddSeenUser appends userID to the message's seen set unless the user
	// sent it or already saw it. The returned flag reports whether it changed.
	AddSeenUser(ctx context.Context, conversationID, messageID, userID string) (*model.Message, bool, error)

	Close(ctx context.Context) error
}

// Loader creates a Store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

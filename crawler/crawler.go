// Package crawler defines the narrow boundaries between the discovery and
// dispatch logic and the remote Telegram platform.
package crawler

import (
	"context"
	"errors"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/zelenin/go-tdlib/client"
)

// ErrChannelNotFound is returned when a channel reference cannot be resolved
// to a platform identifier (unknown, private or deleted).
var ErrChannelNotFound = errors.New("channel not found")

// TDLibClient is the subset of the go-tdlib client used by the adapters.
type TDLibClient interface {
	SearchPublicChat(req *client.SearchPublicChatRequest) (*client.Chat, error)
	SearchPublicChats(req *client.SearchPublicChatsRequest) (*client.Chats, error)
	GetChat(req *client.GetChatRequest) (*client.Chat, error)
	GetSupergroup(req *client.GetSupergroupRequest) (*client.Supergroup, error)
	GetSupergroupFullInfo(req *client.GetSupergroupFullInfoRequest) (*client.SupergroupFullInfo, error)
	GetChatSimilarChats(req *client.GetChatSimilarChatsRequest) (*client.Chats, error)
	GetRecommendedChats() (*client.Chats, error)
	GetChatHistory(req *client.GetChatHistoryRequest) (*client.Messages, error)
	GetMessageThread(req *client.GetMessageThreadRequest) (*client.MessageThreadInfo, error)
	JoinChat(req *client.JoinChatRequest) (*client.Ok, error)
	SendMessage(req *client.SendMessageRequest) (*client.Message, error)
	GetMe() (*client.User, error)
	Close() (*client.Ok, error)
}

// InternalRef identifies a channel on the platform. ChatID is zero when only
// the username is known and the reference still has to be resolved.
type InternalRef struct {
	ChatID   int64
	Username string
}

// RawChannel is the typed shape of a candidate channel returned by the
// discovery client. Loosely typed platform payloads never pass this boundary.
type RawChannel struct {
	ID              int64
	Title           string
	Username        string
	SubscriberCount *int
	Verified        bool
	IsBroadcast     bool
}

// DiscoveryClient exposes the platform's channel-similarity graph.
type DiscoveryClient interface {
	// Resolve maps a username to an internal reference. It returns an error
	// wrapping ErrChannelNotFound when the channel does not exist or is private.
	Resolve(ctx context.Context, username string) (InternalRef, error)

	// GetRecommendations returns channels similar to ref, or the platform-wide
	// recommendations when ref is nil.
	GetRecommendations(ctx context.Context, ref *InternalRef, limit int) ([]RawChannel, error)

	// SearchByKeywords performs a platform-wide text search.
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]RawChannel, error)
}

// ExecuteResult is returned by a successful action.
type ExecuteResult struct {
	ResultID string
}

// ActionClient performs a single mutating action against a target. Failures
// are reported as *model.ActionError so they can be classified.
type ActionClient interface {
	Execute(ctx context.Context, action model.ActionKind, target model.ActionTarget, payload string) (ExecuteResult, error)
}

package telegramhelper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/rs/zerolog/log"
	"github.com/zelenin/go-tdlib/client"
)

// TDLibDiscovery implements crawler.DiscoveryClient on top of go-tdlib.
type TDLibDiscovery struct {
	client  crawler.TDLibClient
	timeout time.Duration
}

// NewTDLibDiscovery wraps an authenticated client. timeout bounds every
// individual request.
func NewTDLibDiscovery(tdlibClient crawler.TDLibClient, timeout time.Duration) *TDLibDiscovery {
	return &TDLibDiscovery{client: tdlibClient, timeout: timeout}
}

// Resolve maps a public username to its chat ID.
func (d *TDLibDiscovery) Resolve(ctx context.Context, username string) (crawler.InternalRef, error) {
	chat, err := callWithTimeout(ctx, d.timeout, func() (*client.Chat, error) {
		return d.client.SearchPublicChat(&client.SearchPublicChatRequest{Username: username})
	})
	if err != nil {
		parsed := ParseTDLibError(err)
		if parsed.Code == model.ErrorNotFound || parsed.Code == model.ErrorPermissionDenied || parsed.Code == model.ErrorRejected {
			return crawler.InternalRef{}, fmt.Errorf("resolve %s: %w", username, crawler.ErrChannelNotFound)
		}
		return crawler.InternalRef{}, fmt.Errorf("resolve %s: %w", username, err)
	}
	if chat == nil {
		return crawler.InternalRef{}, fmt.Errorf("resolve %s: %w", username, crawler.ErrChannelNotFound)
	}
	return crawler.InternalRef{ChatID: chat.Id, Username: username}, nil
}

// GetRecommendations returns channels similar to ref, or the account's
// global recommendations when ref is nil.
func (d *TDLibDiscovery) GetRecommendations(ctx context.Context, ref *crawler.InternalRef, limit int) ([]crawler.RawChannel, error) {
	var chats *client.Chats
	var err error

	if ref == nil {
		chats, err = callWithTimeout(ctx, d.timeout, d.client.GetRecommendedChats)
	} else {
		chatID := ref.ChatID
		if chatID == 0 {
			resolved, rerr := d.Resolve(ctx, ref.Username)
			if rerr != nil {
				return nil, rerr
			}
			chatID = resolved.ChatID
		}
		chats, err = callWithTimeout(ctx, d.timeout, func() (*client.Chats, error) {
			return d.client.GetChatSimilarChats(&client.GetChatSimilarChatsRequest{ChatId: chatID})
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}
	if chats == nil {
		return nil, nil
	}

	return d.describeChats(ctx, chats.ChatIds, limit), nil
}

// SearchByKeywords runs one public chat search per keyword and merges the
// results in keyword order.
func (d *TDLibDiscovery) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]crawler.RawChannel, error) {
	var ids []int64
	seen := make(map[int64]bool)
	var lastErr error

	for _, kw := range keywords {
		chats, err := callWithTimeout(ctx, d.timeout, func() (*client.Chats, error) {
			return d.client.SearchPublicChats(&client.SearchPublicChatsRequest{Query: kw})
		})
		if err != nil {
			log.Debug().Err(err).Str("keyword", kw).Msg("Keyword search failed")
			lastErr = err
			continue
		}
		if chats == nil {
			continue
		}
		for _, id := range chats.ChatIds {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 && lastErr != nil {
		return nil, fmt.Errorf("keyword search failed: %w", lastErr)
	}
	return d.describeChats(ctx, ids, limit), nil
}

// describeChats loads chat and supergroup details for up to limit IDs.
// Chats that cannot be loaded are skipped.
func (d *TDLibDiscovery) describeChats(ctx context.Context, ids []int64, limit int) []crawler.RawChannel {
	out := make([]crawler.RawChannel, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		raw, err := d.describeChat(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Debug().Err(err).Int64("chat_id", id).Msg("Skipping chat")
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (d *TDLibDiscovery) describeChat(ctx context.Context, chatID int64) (crawler.RawChannel, error) {
	chat, err := callWithTimeout(ctx, d.timeout, func() (*client.Chat, error) {
		return d.client.GetChat(&client.GetChatRequest{ChatId: chatID})
	})
	if err != nil {
		return crawler.RawChannel{}, fmt.Errorf("failed to get chat: %w", err)
	}

	raw := crawler.RawChannel{ID: chat.Id, Title: chat.Title}

	sg, ok := chat.Type.(*client.ChatTypeSupergroup)
	if !ok {
		return raw, nil
	}
	raw.IsBroadcast = sg.IsChannel

	group, err := callWithTimeout(ctx, d.timeout, func() (*client.Supergroup, error) {
		return d.client.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: sg.SupergroupId})
	})
	if err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Msg("Supergroup details unavailable")
		return raw, nil
	}

	if group.Usernames != nil && len(group.Usernames.ActiveUsernames) > 0 {
		raw.Username = group.Usernames.ActiveUsernames[0]
	}
	raw.Verified = group.IsVerified

	members := group.MemberCount
	if members == 0 {
		// The cached supergroup often lacks a count; the full info has it.
		full, err := callWithTimeout(ctx, d.timeout, func() (*client.SupergroupFullInfo, error) {
			return d.client.GetSupergroupFullInfo(&client.GetSupergroupFullInfoRequest{SupergroupId: sg.SupergroupId})
		})
		if err != nil {
			log.Debug().Err(err).Int64("chat_id", chatID).Msg("Supergroup full info unavailable")
		} else if full != nil {
			members = full.MemberCount
		}
	}
	if members > 0 {
		count := int(members)
		raw.SubscriberCount = &count
	}
	return raw, nil
}

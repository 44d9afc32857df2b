package telegramhelper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/rs/zerolog/log"
	"github.com/zelenin/go-tdlib/client"
)

// TDLibActionClient implements crawler.ActionClient on top of go-tdlib.
// Every error it returns is a *model.ActionError.
type TDLibActionClient struct {
	client  crawler.TDLibClient
	timeout time.Duration
}

func NewTDLibActionClient(tdlibClient crawler.TDLibClient, timeout time.Duration) *TDLibActionClient {
	return &TDLibActionClient{client: tdlibClient, timeout: timeout}
}

// Execute applies action to target.
func (a *TDLibActionClient) Execute(ctx context.Context, action model.ActionKind, target model.ActionTarget, payload string) (crawler.ExecuteResult, error) {
	chatID, err := a.chatID(ctx, target.Channel)
	if err != nil {
		return crawler.ExecuteResult{}, err
	}

	switch action {
	case model.ActionJoin:
		return a.join(ctx, chatID)
	case model.ActionMessage:
		return a.send(ctx, chatID, 0, payload)
	case model.ActionComment:
		return a.comment(ctx, chatID, payload)
	default:
		return crawler.ExecuteResult{}, &model.ActionError{Code: model.ErrorUnknown, Message: fmt.Sprintf("unsupported action %q", action)}
	}
}

func (a *TDLibActionClient) chatID(ctx context.Context, ch model.ChannelRef) (int64, error) {
	if ch.ID != 0 {
		return ch.ID, nil
	}
	if !ch.HasUsername() {
		return 0, &model.ActionError{Code: model.ErrorNotFound, Message: "target has neither id nor username"}
	}

	chat, err := callWithTimeout(ctx, a.timeout, func() (*client.Chat, error) {
		return a.client.SearchPublicChat(&client.SearchPublicChatRequest{Username: ch.NormalizedUsername()})
	})
	if err != nil {
		return 0, ParseTDLibError(err)
	}
	return chat.Id, nil
}

func (a *TDLibActionClient) join(ctx context.Context, chatID int64) (crawler.ExecuteResult, error) {
	_, err := callWithTimeout(ctx, a.timeout, func() (*client.Ok, error) {
		return a.client.JoinChat(&client.JoinChatRequest{ChatId: chatID})
	})
	if err != nil {
		return crawler.ExecuteResult{}, ParseTDLibError(err)
	}
	return crawler.ExecuteResult{ResultID: strconv.FormatInt(chatID, 10)}, nil
}

func (a *TDLibActionClient) send(ctx context.Context, chatID, threadID int64, text string) (crawler.ExecuteResult, error) {
	if text == "" {
		return crawler.ExecuteResult{}, &model.ActionError{Code: model.ErrorContentUnavailable, Message: "empty message text"}
	}

	msg, err := callWithTimeout(ctx, a.timeout, func() (*client.Message, error) {
		return a.client.SendMessage(&client.SendMessageRequest{
			ChatId:          chatID,
			MessageThreadId: threadID,
			InputMessageContent: &client.InputMessageText{
				Text: &client.FormattedText{Text: text},
			},
		})
	})
	if err != nil {
		return crawler.ExecuteResult{}, ParseTDLibError(err)
	}
	return crawler.ExecuteResult{ResultID: strconv.FormatInt(msg.Id, 10)}, nil
}

// comment replies in the discussion thread of the channel's latest post.
func (a *TDLibActionClient) comment(ctx context.Context, chatID int64, text string) (crawler.ExecuteResult, error) {
	history, err := callWithTimeout(ctx, a.timeout, func() (*client.Messages, error) {
		return a.client.GetChatHistory(&client.GetChatHistoryRequest{
			ChatId:        chatID,
			FromMessageId: 0,
			Offset:        0,
			Limit:         1,
			OnlyLocal:     false,
		})
	})
	if err != nil {
		return crawler.ExecuteResult{}, ParseTDLibError(err)
	}
	if history == nil || len(history.Messages) == 0 {
		return crawler.ExecuteResult{}, &model.ActionError{Code: model.ErrorContentUnavailable, Message: "channel has no posts"}
	}

	post := history.Messages[0]
	thread, err := callWithTimeout(ctx, a.timeout, func() (*client.MessageThreadInfo, error) {
		return a.client.GetMessageThread(&client.GetMessageThreadRequest{ChatId: chatID, MessageId: post.Id})
	})
	if err != nil {
		parsed := ParseTDLibError(err)
		// Posts without a linked discussion group have no thread at all.
		if parsed.Code == model.ErrorNotFound || parsed.Code == model.ErrorRejected {
			parsed.Code = model.ErrorFeatureDisabled
		}
		return crawler.ExecuteResult{}, parsed
	}

	log.Debug().
		Int64("chat_id", chatID).
		Int64("post_id", post.Id).
		Int64("thread_id", thread.MessageThreadId).
		Msg("Posting comment")

	return a.send(ctx, thread.ChatId, thread.MessageThreadId, text)
}

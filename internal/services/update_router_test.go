package services

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func commandUpdate(id int, chatID int64, text string) tgbotapi.Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
			From:     &tgbotapi.User{ID: chatID},
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		},
	}
}

func contactUpdate(id int, chatID, contactUserID int64, phone string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			Chat:    &tgbotapi.Chat{ID: chatID, Type: "private"},
			From:    &tgbotapi.User{ID: chatID},
			Contact: &tgbotapi.Contact{PhoneNumber: phone, UserID: contactUserID},
		},
	}
}

func TestClassifyUpdate(t *testing.T) {
	cases := []struct {
		name  string
		u     tgbotapi.Update
		kind  UpdateKind
		token string
		phone string
	}{
		{"link command", commandUpdate(1, 42, "/start link_AbCdEf0123456789"), UpdateLinkCommand, "AbCdEf0123456789", ""},
		{"bare start", commandUpdate(2, 42, "/start"), UpdateStartHelp, "", ""},
		{"start with other payload", commandUpdate(3, 42, "/start promo"), UpdateStartHelp, "", ""},
		{"empty link token", commandUpdate(4, 42, "/start link_"), UpdateStartHelp, "", ""},
		{"other command", commandUpdate(5, 42, "/help"), UpdateIgnored, "", ""},
		{"own contact", contactUpdate(6, 42, 42, "85512345678"), UpdateContact, "", "85512345678"},
		{"foreign contact", contactUpdate(7, 42, 99, "85512345678"), UpdateForeignContact, "", ""},
		{"no message", tgbotapi.Update{UpdateID: 8}, UpdateIgnored, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyUpdate(tc.u)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.token, got.LinkToken)
			assert.Equal(t, tc.phone, got.Phone)
		})
	}
}

func TestClassifyUpdateIgnoresGroupChats(t *testing.T) {
	u := commandUpdate(1, -100, "/start link_abc")
	u.Message.Chat.Type = "group"
	assert.Equal(t, UpdateIgnored, ClassifyUpdate(u).Kind)
}

type fakeLinkEngine struct {
	links    []string
	contacts []string
	err      error
}

func (e *fakeLinkEngine) HandleLink(_ context.Context, token string, _ int64) error {
	e.links = append(e.links, token)
	return e.err
}

func (e *fakeLinkEngine) HandleContact(_ context.Context, _ int64, phone string) error {
	e.contacts = append(e.contacts, phone)
	return e.err
}

func TestUpdateRouterRoute(t *testing.T) {
	engine := &fakeLinkEngine{}
	notifier := &recordingNotifier{}
	r := NewUpdateRouter(engine, notifier, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Route(ctx, commandUpdate(1, 42, "/start link_tok")))
	require.NoError(t, r.Route(ctx, contactUpdate(2, 42, 42, "+85512345678")))
	require.NoError(t, r.Route(ctx, commandUpdate(3, 42, "/start")))
	require.NoError(t, r.Route(ctx, contactUpdate(4, 42, 7, "+85512345678")))

	assert.Equal(t, []string{"tok"}, engine.links)
	assert.Equal(t, []string{"+85512345678"}, engine.contacts)
	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, msgStartHelp, notifier.msgs[0].Text)
	assert.Equal(t, OutboundContactRequest, notifier.msgs[1].Kind)

	engine.err = errors.New("boom")
	assert.Error(t, r.Route(ctx, commandUpdate(5, 42, "/start link_x")))
}

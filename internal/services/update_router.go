package services

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const linkCommandPrefix = "link_"

const (
	msgStartHelp      = "Hi! To verify your phone, open the link from the dispatchdesk app."
	msgForeignContact = "Please share your own number with the button below, not a saved contact."
)

type UpdateKind int

const (
	UpdateIgnored UpdateKind = iota
	UpdateLinkCommand
	UpdateStartHelp
	UpdateContact
	UpdateForeignContact
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateLinkCommand:
		return "link"
	case UpdateStartHelp:
		return "start"
	case UpdateContact:
		return "contact"
	case UpdateForeignContact:
		return "foreign_contact"
	}
	return "ignored"
}

type ClassifiedUpdate struct {
	Kind      UpdateKind
	ChatID    int64
	LinkToken string
	Phone     string
}

// ClassifyUpdate looks only at private-chat messages.
func ClassifyUpdate(u tgbotapi.Update) ClassifiedUpdate {
	msg := u.Message
	if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return ClassifiedUpdate{Kind: UpdateIgnored}
	}
	out := ClassifiedUpdate{ChatID: msg.Chat.ID}

	if msg.Contact != nil {
		// a contact card forwarded from the address book carries someone
		// else's user id (or none)
		if msg.From == nil || msg.Contact.UserID != msg.From.ID {
			out.Kind = UpdateForeignContact
			return out
		}
		out.Kind = UpdateContact
		out.Phone = msg.Contact.PhoneNumber
		return out
	}

	if msg.IsCommand() && msg.Command() == "start" {
		arg := strings.TrimSpace(msg.CommandArguments())
		if token := strings.TrimPrefix(arg, linkCommandPrefix); token != arg && token != "" {
			out.Kind = UpdateLinkCommand
			out.LinkToken = token
			return out
		}
		out.Kind = UpdateStartHelp
		return out
	}
	out.Kind = UpdateIgnored
	return out
}

// LinkEngine is the part of the verification engine the bot drives.
type LinkEngine interface {
	HandleLink(ctx context.Context, linkToken string, chatID int64) error
	HandleContact(ctx context.Context, chatID int64, sharedPhone string) error
}

// UpdateRouter is shared by the long-poll loop and the webhook handler.
type UpdateRouter struct {
	engine   LinkEngine
	notifier Notifier
	logger   *zap.Logger
}

func NewUpdateRouter(engine LinkEngine, notifier Notifier, logger *zap.Logger) *UpdateRouter {
	return &UpdateRouter{engine: engine, notifier: notifier, logger: logger}
}

func (r *UpdateRouter) Route(ctx context.Context, u tgbotapi.Update) error {
	cu := ClassifyUpdate(u)
	switch cu.Kind {
	case UpdateLinkCommand:
		return r.engine.HandleLink(ctx, cu.LinkToken, cu.ChatID)
	case UpdateContact:
		return r.engine.HandleContact(ctx, cu.ChatID, cu.Phone)
	case UpdateStartHelp:
		r.notifier.Enqueue(OutboundMessage{Kind: OutboundNotice, ChatID: cu.ChatID, Text: msgStartHelp})
	case UpdateForeignContact:
		r.notifier.Enqueue(OutboundMessage{Kind: OutboundContactRequest, ChatID: cu.ChatID, Text: msgForeignContact})
	default:
		r.logger.Debug("[tg][route] update ignored", zap.Int("update_id", u.UpdateID))
	}
	return nil
}

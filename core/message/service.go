package message

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrSelfMessage  = errors.New("you cannot message yourself")
	ErrNotReachable = errors.New("you can only message your counselors, your students or an admin")
)

const previewMaxLength = 140

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message, exec ...core.DBExecutor) (Message, error)
		GetMessage(ctx context.Context, id string, exec ...core.DBExecutor) (Message, error)
		// Conversation returns the messages exchanged by both users, oldest first.
		Conversation(ctx context.Context, userID, otherID string, exec ...core.DBExecutor) ([]Message, error)
		UpdateMessage(ctx context.Context, msg Message, exec ...core.DBExecutor) (Message, error)
		// MarkConversationRead marks every unread message sent by senderID to recipientID as read.
		MarkConversationRead(ctx context.Context, recipientID, senderID string, at time.Time, exec ...core.DBExecutor) (int, error)
		CountUnread(ctx context.Context, recipientID string, exec ...core.DBExecutor) (int, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		access  core.AccessChecker
		users   UserFinder
		mailSvc core.EmailService
		events  core.EventPublisher
		logger  core.Logger
	}
)

func NewService(repo Repository, access core.AccessChecker, users UserFinder, mailSvc core.EmailService, events core.EventPublisher, logger core.Logger) *Service {
	if events == nil {
		events = core.NoopPublisher
	}
	return &Service{repo: repo, access: access, users: users, mailSvc: mailSvc, events: events, logger: logger}
}

// checkReachable allows messages between a counselor and an assigned student, and from or to an admin.
func (svc *Service) checkReachable(ctx context.Context, actor core.Actor, other user.User) error {
	if actor.ID == other.ID {
		return core.NewValidationError(ErrSelfMessage, core.FieldError{Field: "recipient_id", Error: ErrSelfMessage.Error()})
	}
	if !other.IsActive {
		return user.ErrNotFound
	}
	if actor.IsAdmin() || other.IsAdmin() {
		return nil
	}

	var err error
	switch {
	case actor.IsCounselor() && other.IsStudent():
		err = svc.access.CheckStudentAccess(ctx, actor, other.ID)
	case actor.IsStudent() && other.IsCounselor():
		err = svc.access.CheckStudentAccess(ctx, other.Actor(), actor.ID)
	default:
		err = core.ErrForbidden
	}
	if errors.Is(err, core.ErrForbidden) {
		return core.NewValidationError(ErrNotReachable, core.FieldError{Field: "recipient_id", Error: ErrNotReachable.Error()})
	}
	return err
}

// Send delivers a message and notifies the recipient by email.
func (svc *Service) Send(ctx context.Context, actor core.Actor, nm NewMessage) (Message, error) {
	recipient, err := svc.users.GetByID(ctx, nm.RecipientID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Message{}, core.NewValidationError(err, core.FieldError{Field: "recipient_id", Error: err.Error()})
		}
		return Message{}, errors.Wrap(err, "finding recipient")
	}
	if err = svc.checkReachable(ctx, actor, recipient); err != nil {
		return Message{}, err
	}

	msg, err := svc.repo.CreateMessage(ctx, Message{
		ID:          uuid.New().String(),
		SenderID:    actor.ID,
		RecipientID: recipient.ID,
		Body:        nm.Body,
		CreatedAt:   core.NowFunc(),
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	if err := svc.events.Publish(ctx, "messages."+recipient.ID+".new", msg); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing message event: %v", err), err)
	}
	if svc.mailSvc != nil {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
			Subject:      "New message from " + actor.Name,
			TemplateName: "new_message",
			TemplateData: map[string]interface{}{
				"RecipientName": recipient.Name,
				"SenderName":    actor.Name,
				"SenderID":      actor.ID,
				"Preview":       core.Truncate(msg.Body, previewMaxLength),
			},
		})
	}
	return msg, nil
}

// Conversation returns the messages the actor exchanged with another user, oldest first.
func (svc *Service) Conversation(ctx context.Context, actor core.Actor, otherID string) ([]Message, error) {
	if _, err := svc.users.GetByID(ctx, otherID); err != nil {
		return nil, err
	}
	msgs, err := svc.repo.Conversation(ctx, actor.ID, otherID)
	return msgs, errors.Wrap(err, "listing messages")
}

// MarkRead marks a message as read. Only its recipient may do so.
func (svc *Service) MarkRead(ctx context.Context, actor core.Actor, id string) (Message, error) {
	msg, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if msg.RecipientID != actor.ID {
		if msg.SenderID == actor.ID {
			return Message{}, core.ErrForbidden
		}
		return Message{}, ErrNotFound
	}
	if msg.ReadAt != nil {
		return msg, nil
	}
	now := core.NowFunc()
	msg.ReadAt = &now
	msg, err = svc.repo.UpdateMessage(ctx, msg)
	return msg, errors.Wrap(err, "marking message read")
}

// MarkConversationRead marks every message the other user sent to the actor as read.
func (svc *Service) MarkConversationRead(ctx context.Context, actor core.Actor, otherID string) (int, error) {
	n, err := svc.repo.MarkConversationRead(ctx, actor.ID, otherID, core.NowFunc())
	return n, errors.Wrap(err, "marking messages read")
}

func (svc *Service) UnreadCount(ctx context.Context, actor core.Actor) (int, error) {
	n, err := svc.repo.CountUnread(ctx, actor.ID)
	return n, errors.Wrap(err, "counting unread messages")
}

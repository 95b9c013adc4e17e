package boiledrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/message"
)

const messageColumns = `id, sender_id, recipient_id, body, created_at, read_at`

type messageRow struct {
	ID          string    `boil:"id"`
	SenderID    string    `boil:"sender_id"`
	RecipientID string    `boil:"recipient_id"`
	Body        string    `boil:"body"`
	CreatedAt   time.Time `boil:"created_at"`
	ReadAt      null.Time `boil:"read_at"`
}

func (row messageRow) unboil() message.Message {
	return message.Message{
		ID:          row.ID,
		SenderID:    row.SenderID,
		RecipientID: row.RecipientID,
		Body:        row.Body,
		CreatedAt:   row.CreatedAt,
		ReadAt:      row.ReadAt.Ptr(),
	}
}

type messageRepository struct {
	repository
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(exec core.DBExecutor) *messageRepository {
	return &messageRepository{repository{exec: exec}}
}

func (repo messageRepository) CreateMessage(ctx context.Context, msg message.Message, exec ...core.DBExecutor) (message.Message, error) {
	_, err := queries.Raw(
		`INSERT INTO message (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Body, msg.CreatedAt.UTC(), null.TimeFromPtr(msg.ReadAt),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo messageRepository) GetMessage(ctx context.Context, id string, exec ...core.DBExecutor) (message.Message, error) {
	var row messageRow
	err := queries.Raw(`SELECT `+messageColumns+` FROM message WHERE id::text = $1`, id).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return message.Message{}, trapNoRowsErr(err, message.ErrNotFound, "getting message")
	}
	return row.unboil(), nil
}

func (repo messageRepository) Conversation(ctx context.Context, userID, otherID string, exec ...core.DBExecutor) ([]message.Message, error) {
	var rows []messageRow
	err := queries.Raw(
		`SELECT `+messageColumns+` FROM message
		WHERE (sender_id::text = $1 AND recipient_id::text = $2) OR (sender_id::text = $2 AND recipient_id::text = $1)
		ORDER BY created_at ASC`,
		userID, otherID,
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}
	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.unboil())
	}
	return msgs, nil
}

func (repo messageRepository) UpdateMessage(ctx context.Context, msg message.Message, exec ...core.DBExecutor) (message.Message, error) {
	res, err := queries.Raw(
		`UPDATE message SET body = $2, read_at = $3 WHERE id = $1`,
		msg.ID, msg.Body, null.TimeFromPtr(msg.ReadAt),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return message.Message{}, errors.Wrap(err, "updating message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return message.Message{}, message.ErrNotFound
	}
	return msg, nil
}

func (repo messageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID string, at time.Time, exec ...core.DBExecutor) (int, error) {
	res, err := queries.Raw(
		`UPDATE message SET read_at = $3 WHERE recipient_id::text = $1 AND sender_id::text = $2 AND read_at IS NULL`,
		recipientID, senderID, at.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking messages read")
}

func (repo messageRepository) CountUnread(ctx context.Context, recipientID string, exec ...core.DBExecutor) (int, error) {
	var res struct {
		Count int `boil:"count"`
	}
	err := queries.Raw(
		`SELECT count(*) AS "count" FROM message WHERE recipient_id::text = $1 AND read_at IS NULL`, recipientID,
	).Bind(ctx, repo.getExec(exec), &res)
	return res.Count, errors.Wrap(err, "counting unread messages")
}

package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/message"
)

type messageRepository struct {
	db *DB
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *DB) *messageRepository {
	return &messageRepository{db: db}
}

func (repo *messageRepository) CreateMessage(_ context.Context, msg message.Message, _ ...core.DBExecutor) (message.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.tables.messages[msg.ID] = msg
	return msg, nil
}

func (repo *messageRepository) GetMessage(_ context.Context, id string, _ ...core.DBExecutor) (message.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if msg, ok := repo.db.tables.messages[id]; ok {
		return msg, nil
	}
	return message.Message{}, message.ErrNotFound
}

func (repo *messageRepository) Conversation(_ context.Context, userID, otherID string, _ ...core.DBExecutor) ([]message.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	msgs := make([]message.Message, 0)
	for _, msg := range repo.db.tables.messages {
		if (msg.SenderID == userID && msg.RecipientID == otherID) || (msg.SenderID == otherID && msg.RecipientID == userID) {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (repo *messageRepository) UpdateMessage(_ context.Context, msg message.Message, _ ...core.DBExecutor) (message.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.messages[msg.ID]; !ok {
		return message.Message{}, message.ErrNotFound
	}
	repo.db.tables.messages[msg.ID] = msg
	return msg, nil
}

func (repo *messageRepository) MarkConversationRead(_ context.Context, recipientID, senderID string, at time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for id, msg := range repo.db.tables.messages {
		if msg.RecipientID == recipientID && msg.SenderID == senderID && msg.ReadAt == nil {
			readAt := at
			msg.ReadAt = &readAt
			repo.db.tables.messages[id] = msg
			n++
		}
	}
	return n, nil
}

func (repo *messageRepository) CountUnread(_ context.Context, recipientID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, msg := range repo.db.tables.messages {
		if msg.RecipientID == recipientID && msg.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

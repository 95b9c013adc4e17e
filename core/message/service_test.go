package message_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/user"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	"github.com/admitdesk/admitdesk/tests"
)

var ctx = context.Background()

func TestService_Send(t *testing.T) {
	s := testutil.NewStack(t)
	admin, counselor, student := s.People(t)
	stranger := testutil.CreateUser(t, s.UserRepo, "Stranger", "stranger@test.io", "", []string{user.RoleStudent}, true)
	otherCounselor := testutil.CreateUser(t, s.UserRepo, "Otto", "otto@test.io", "", []string{user.RoleCounselor}, true)
	inactive := testutil.CreateUser(t, s.UserRepo, "Gone", "gone@test.io", "", []string{user.RoleCounselor}, false)
	testutil.Assign(t, s.UserRepo, inactive, student)

	tests := []struct {
		name      string
		from      user.User
		to        string
		wantErr   error
		wantValid bool
	}{
		{name: "student to counselor", from: student, to: counselor.ID},
		{name: "counselor to student", from: counselor, to: student.ID},
		{name: "student to admin", from: student, to: admin.ID},
		{name: "admin to stranger", from: admin, to: stranger.ID},
		{name: "stranger to admin", from: stranger, to: admin.ID},
		{name: "student to unassigned counselor", from: student, to: otherCounselor.ID, wantErr: message.ErrNotReachable, wantValid: true},
		{name: "counselor to unassigned student", from: counselor, to: stranger.ID, wantErr: message.ErrNotReachable, wantValid: true},
		{name: "student to student", from: student, to: stranger.ID, wantErr: message.ErrNotReachable, wantValid: true},
		{name: "counselor to counselor", from: counselor, to: otherCounselor.ID, wantErr: message.ErrNotReachable, wantValid: true},
		{name: "self", from: student, to: student.ID, wantErr: message.ErrSelfMessage, wantValid: true},
		{name: "unknown", from: student, to: uuid.New().String(), wantErr: user.ErrNotFound, wantValid: true},
		{name: "inactive", from: student, to: inactive.ID, wantErr: user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.PopSentMessages()
			s.Events.Reset()

			msg, err := s.Messages.Send(ctx, tt.from.Actor(), message.NewMessage{RecipientID: tt.to, Body: "Hi!"})
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Send() error = %v, want %v", err, tt.wantErr)
				var verr *core.ValidationError
				assert.Equal(t, tt.wantValid, errors.As(err, &verr))
				assert.Empty(t, emailsvc.PopSentMessages())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from.ID, msg.SenderID)
			assert.Equal(t, tt.to, msg.RecipientID)
			assert.Nil(t, msg.ReadAt)
			assert.Equal(t, []string{"messages." + tt.to + ".new"}, s.Events.Subjects())

			sent := emailsvc.PopSentMessages()
			if assert.Len(t, sent, 1) {
				assert.Equal(t, "new_message", sent[0].TemplateName)
				assert.Equal(t, "New message from "+tt.from.Name, sent[0].Subject)
			}
		})
	}
}

func TestService_Send_preview(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)

	_, err := s.Messages.Send(ctx, student.Actor(), message.NewMessage{RecipientID: counselor.ID, Body: strings.Repeat("a", 500)})
	require.NoError(t, err)
	sent := emailsvc.PopSentMessages()
	require.Len(t, sent, 1)
	preview := sent[0].TemplateData.(map[string]interface{})["Preview"].(string)
	assert.LessOrEqual(t, len([]rune(preview)), 143)
}

func TestService_Conversation(t *testing.T) {
	testutil.TickingClock(t, time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC))
	s := testutil.NewStack(t)
	admin, counselor, student := s.People(t)

	send := func(from, to user.User, body string) message.Message {
		msg, err := s.Messages.Send(ctx, from.Actor(), message.NewMessage{RecipientID: to.ID, Body: body})
		require.NoError(t, err)
		return msg
	}
	first := send(student, counselor, "Hello")
	send(counselor, student, "Hi Sam")
	send(student, counselor, "Question about my essay")
	send(admin, student, "Welcome")

	conv, err := s.Messages.Conversation(ctx, student.Actor(), counselor.ID)
	require.NoError(t, err)
	bodies := make([]string, len(conv))
	for i, m := range conv {
		bodies[i] = m.Body
	}
	assert.Equal(t, []string{"Hello", "Hi Sam", "Question about my essay"}, bodies)

	_, err = s.Messages.Conversation(ctx, student.Actor(), uuid.New().String())
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	unread, err := s.Messages.UnreadCount(ctx, counselor.Actor())
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	_, err = s.Messages.MarkRead(ctx, student.Actor(), first.ID)
	assert.Equal(t, core.ErrForbidden, err, "the sender cannot mark it read")
	_, err = s.Messages.MarkRead(ctx, admin.Actor(), first.ID)
	assert.Equal(t, message.ErrNotFound, err)

	read, err := s.Messages.MarkRead(ctx, counselor.Actor(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	again, err := s.Messages.MarkRead(ctx, counselor.Actor(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, read.ReadAt, again.ReadAt, "the first read time is kept")

	n, err := s.Messages.MarkConversationRead(ctx, counselor.Actor(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	unread, err = s.Messages.UnreadCount(ctx, counselor.Actor())
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	unread, err = s.Messages.UnreadCount(ctx, student.Actor())
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
}

package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/admitdesk/admitdesk/core"
)

type sendgridService struct {
	sender
	client *sendgrid.Client
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *sendgridService {
	return &sendgridService{
		sender: newSender(conf, logger),
		client: sendgrid.NewSendClient(conf.SendgridApiKey),
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if svc.prepare(msg) {
				svc.send(*msg)
			}
		}(msg)
	}
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	emails := make([]*sgmail.Email, 0, len(addrs))
	for _, a := range addrs {
		emails = append(emails, sgmail.NewEmail(a.Name, a.Address))
	}
	return emails
}

// build maps msg onto a SendGrid v3 payload. The template name becomes a category, for SendGrid stats.
func (svc *sendgridService) build(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subject(msg)
	p.AddTos(sgEmails(msg.To)...)
	p.AddCCs(sgEmails(msg.Cc)...)
	p.AddBCCs(sgEmails(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(svc.from.Name, svc.from.Address))
	m.AddPersonalizations(p)

	// text/plain must come first; SendGrid rejects empty contents
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	return m
}

func (svc *sendgridService) send(msg core.EmailMessage) {
	res, err := svc.client.Send(svc.build(msg))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email to %s: %v", joinAddresses(msg.To), err), err)
		return
	}
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending email to %s - status: %d - body: %s", joinAddresses(msg.To), res.StatusCode, res.Body))
	}
}

// Package emailsvc delivers core.EmailMessage values, through SendGrid or to the console.
package emailsvc

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/admitdesk/admitdesk/core"
)

// sender holds what every email service does before handing a message over:
// rendering, subject prefixing and dropping empty messages.
type sender struct {
	from            mail.Address
	subjPrefix      string
	frontendBaseURL string
	logger          core.Logger
}

func newSender(conf *core.Config, logger core.Logger) sender {
	return sender{
		from:            conf.DefaultFromEmail(),
		subjPrefix:      "[" + conf.AppName + "] ",
		frontendBaseURL: conf.FrontendBaseURL,
		logger:          logger,
	}
}

// prepare renders msg. ok is false when there is nothing to deliver.
func (s sender) prepare(msg *core.EmailMessage) (ok bool) {
	if err := msg.Render(s.frontendBaseURL); err != nil {
		s.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.TemplateName, err), err)
		return false
	}
	return msg.HasRecipients() && msg.HasContent()
}

func (s sender) subject(msg core.EmailMessage) string {
	return s.subjPrefix + msg.Subject
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

package emailsvc

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/admitdesk/admitdesk/core"
)

var (
	// SentMessages records every email the console services sent, for tests to inspect.
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

// PopSentMessages returns and clears the recorded messages.
func PopSentMessages() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	msgs := SentMessages
	SentMessages = make([]core.EmailMessage, 0)
	return msgs
}

func record(msg core.EmailMessage) {
	mu.Lock()
	SentMessages = append(SentMessages, msg)
	mu.Unlock()
}

type consoleService struct {
	sender
	quiet bool
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService prints emails to stdout. Used in debug mode.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{sender: newSender(conf, logger)}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.deliver(msg)
	}
}

func (svc *consoleService) deliver(msg *core.EmailMessage) {
	if !svc.prepare(msg) {
		return
	}
	if !svc.quiet {
		log.Println(svc.format(*msg))
	}
	record(*msg)
}

// format lays msg out like a raw email, the text rendition only.
func (svc *consoleService) format(msg core.EmailMessage) string {
	var b strings.Builder
	header := func(name, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}
	header("From", svc.from.String())
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Subject", svc.subject(msg))
	header("To", joinAddresses(msg.To))
	header("Cc", joinAddresses(msg.Cc))
	header("Bcc", joinAddresses(msg.Bcc))
	header("X-Template", msg.TemplateName)
	b.WriteString("\r\n")
	if msg.TextContent != "" {
		b.WriteString(msg.TextContent)
	} else {
		_, _ = fmt.Fprintf(&b, "(html only, %d bytes)", len(msg.HTMLContent))
	}
	return b.String()
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock records emails synchronously without printing them.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleServiceMock{consoleService{sender: newSender(conf, logger), quiet: true}}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.deliver(msg)
	}
}

package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/admitdesk/admitdesk/fs"
)

const tmplDir = "assets/templates/email"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // file name under assets/templates/email, without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what email templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// emailTemplate holds both renditions of one email. Either may be missing.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	executor interface {
		Execute(w io.Writer, data interface{}) error
	}
)

var (
	templates   map[string]emailTemplate
	templatesMu sync.RWMutex
)

func lookupTemplate(name string) (emailTemplate, bool) {
	templatesMu.RLock()
	loaded := templates != nil
	tmpl, ok := templates[name]
	templatesMu.RUnlock()
	if loaded {
		return tmpl, ok
	}

	// not parsed at startup (e.g. in tests): load leniently once
	parsed, _ := parseTemplates(false)
	templatesMu.Lock()
	if templates == nil {
		templates = parsed
	}
	tmpl, ok = templates[name]
	templatesMu.Unlock()
	return tmpl, ok
}

func execute(tmpl executor, data ContextData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render fills TextContent and HTMLContent. frontendBaseURL is exposed to templates for links.
// BodyStr, when set, is the text content as is.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	tmpl, ok := lookupTemplate(m.TemplateName)
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	var err error
	if tmpl.text != nil && m.BodyStr == "" {
		if m.TextContent, err = execute(tmpl.text, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
	}
	if tmpl.html != nil {
		if m.HTMLContent, err = execute(tmpl.html, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// parseTemplates parses every email template of the embedded assets, each with the "_base" layout
// of its extension. Strict templates fail on missing keys. Unparsable templates are skipped and reported.
func parseTemplates(strict bool) (map[string]emailTemplate, []error) {
	parsed := make(map[string]emailTemplate)
	entries, err := fs.ReadDir(appfs.FS, tmplDir)
	if err != nil {
		return parsed, []error{errors.Wrap(err, "reading email templates")}
	}

	var errs []error
	for _, e := range entries {
		fname := e.Name()
		ext := path.Ext(fname)
		if e.IsDir() || strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		files := []string{path.Join(tmplDir, "_base"+ext), path.Join(tmplDir, fname)}
		entry := parsed[name]

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(appfs.FS, files...)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "parsing %s", fname))
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.text = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(appfs.FS, files...)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "parsing %s", fname))
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.html = tmpl
		default:
			continue
		}
		parsed[name] = entry
	}
	return parsed, errs
}

// ParseEmailTemplates parses the embedded email templates once at startup and logs the broken ones.
func ParseEmailTemplates(logger Logger, strict bool) {
	parsed, errs := parseTemplates(strict)
	for _, err := range errs {
		logger.Error(fmt.Sprintf("email templates: %v", err), err)
	}

	templatesMu.Lock()
	templates = parsed
	templatesMu.Unlock()
}

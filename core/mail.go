package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/mahudhurio/fs"
)

var (
	textTemplates *texttmpl.Template
	htmlTemplates *htmltmpl.Template
	tmplInit      sync.Once
)

type (
	// EmailMessage is a renderable email. Either BodyStr (plain, non-templated)
	// or TemplateName (without ext; .txt.tmpl/.html.tmpl variants looked up in
	// the embedded templates dir) must be set.
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData wraps TemplateData with globals available to all templates.
	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*EmailMessage)
	}
)

// ParseEmailTemplates parses all embedded email templates; safe to call more than once.
func ParseEmailTemplates(logger Logger) {
	tmplInit.Do(func() {
		var err error
		if textTemplates, err = texttmpl.ParseFS(appfs.FS, "templates/email/*.txt.tmpl"); err != nil {
			logger.Fatal(fmt.Sprintf("parsing text email templates: %v", err), err)
		}
		if htmlTemplates, err = htmltmpl.ParseFS(appfs.FS, "templates/email/*.html.tmpl"); err != nil {
			logger.Fatal(fmt.Sprintf("parsing html email templates: %v", err), err)
		}
	})
}

// Render resolves TextContent and HTMLContent from either BodyStr or the
// named template pair.
func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return errors.New("one of BodyStr or TemplateName is required")
	}

	data := ContextData{
		AppName:         conf.AppName,
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}

	var txt bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&txt, m.TemplateName+".txt.tmpl", data); err != nil {
		return errors.Wrapf(err, "rendering %s.txt.tmpl", m.TemplateName)
	}
	m.TextContent = txt.String()

	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, m.TemplateName+".html.tmpl", data); err != nil {
		return errors.Wrapf(err, "rendering %s.html.tmpl", m.TemplateName)
	}
	m.HTMLContent = html.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0 || len(m.Bcc) > 0
}

func (m *EmailMessage) HasContent() bool {
	return strings.TrimSpace(m.TextContent) != "" || strings.TrimSpace(m.HTMLContent) != ""
}

package notify

import (
	"bytes"
	"errors"
	"fmt"
	htmltpl "html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	texttpl "text/template"

	goCred "github.com/MrEthical07/goCred"
)

type kindTemplates struct {
	subject *texttpl.Template
	html    *htmltpl.Template
	text    *texttpl.Template
}

// Templates renders engine messages. It implements goCred.Renderer and is
// safe for concurrent use once built.
type Templates struct {
	product string
	kinds   map[goCred.MessageKind]*kindTemplates
}

// TemplateData is what templates see: the engine's dynamic values plus the
// product name.
type TemplateData struct {
	goCred.MessageData
	Product string
}

type templateSource struct {
	subject, html, text string
}

var defaultSources = map[goCred.MessageKind]templateSource{
	goCred.MessageOTP: {
		subject: `Your {{.Product}} verification code`,
		html: `<p>{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}</p>
<p>Your verification code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.ExpiresInMinutes}} minutes. If you did not request it, you can ignore this email.</p>`,
		text: `{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}

Your verification code is {{.Code}}.
It expires in {{.ExpiresInMinutes}} minutes. If you did not request it, you can ignore this email.
`,
	},
	goCred.MessageResetLink: {
		subject: `Reset your {{.Product}} password`,
		html: `<p>{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>The link expires in {{.ExpiresInMinutes}} minutes and can be used once.</p>`,
		text: `{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}

Reset your password: {{.Link}}
The link expires in {{.ExpiresInMinutes}} minutes and can be used once.
`,
	},
	goCred.MessageWelcome: {
		subject: `Welcome to {{.Product}}`,
		html:    `<p>{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}</p><p>Your {{.Product}} account is ready.</p>`,
		text: `{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}

Your {{.Product}} account is ready.
`,
	},
	goCred.MessageSecurityAlert: {
		subject: `{{.Product}} security alert`,
		html: `<p>{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}</p>
<p>We noticed a security event on your account: <strong>{{.Event}}</strong> at {{.OccurredAt.UTC.Format "2006-01-02 15:04 MST"}}.</p>
<p>If this was not you, reset your password now.</p>`,
		text: `{{if .Name}}Hi {{.Name}},{{else}}Hi,{{end}}

We noticed a security event on your account: {{.Event}} at {{.OccurredAt.UTC.Format "2006-01-02 15:04 MST"}}.
If this was not you, reset your password now.
`,
	},
}

// NewTemplates parses the built-in templates.
func NewTemplates(product string) (*Templates, error) {
	if strings.TrimSpace(product) == "" {
		product = "goCred"
	}
	t := &Templates{product: product, kinds: make(map[goCred.MessageKind]*kindTemplates, len(defaultSources))}
	for kind, src := range defaultSources {
		kt, err := parseKind(kind, src)
		if err != nil {
			return nil, err
		}
		t.kinds[kind] = kt
	}
	return t, nil
}

// LoadTemplates starts from the built-in set and replaces any part found in
// dir. Files are named after the kind: otp.subject, otp.html, otp.txt,
// reset-link.html and so on.
func LoadTemplates(dir, product string) (*Templates, error) {
	t, err := NewTemplates(product)
	if err != nil {
		return nil, err
	}

	read := func(name string) (string, bool, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	}

	for kind, src := range defaultSources {
		changed := false
		for ext, dst := range map[string]*string{"subject": &src.subject, "html": &src.html, "txt": &src.text} {
			body, ok, err := read(string(kind) + "." + ext)
			if err != nil {
				return nil, err
			}
			if ok {
				*dst = strings.TrimRight(body, "\n")
				changed = true
			}
		}
		if !changed {
			continue
		}
		kt, err := parseKind(kind, src)
		if err != nil {
			return nil, err
		}
		t.kinds[kind] = kt
	}
	return t, nil
}

func parseKind(kind goCred.MessageKind, src templateSource) (*kindTemplates, error) {
	subject, err := texttpl.New(string(kind) + "_subject").Option("missingkey=error").Parse(src.subject)
	if err != nil {
		return nil, fmt.Errorf("parse %s subject: %w", kind, err)
	}
	html, err := htmltpl.New(string(kind) + "_html").Option("missingkey=error").Parse(src.html)
	if err != nil {
		return nil, fmt.Errorf("parse %s html: %w", kind, err)
	}
	text, err := texttpl.New(string(kind) + "_txt").Option("missingkey=error").Parse(src.text)
	if err != nil {
		return nil, fmt.Errorf("parse %s text: %w", kind, err)
	}
	return &kindTemplates{subject: subject, html: html, text: text}, nil
}

// Render implements goCred.Renderer.
func (t *Templates) Render(kind goCred.MessageKind, data goCred.MessageData) (goCred.Message, error) {
	kt, ok := t.kinds[kind]
	if !ok {
		return goCred.Message{}, fmt.Errorf("unknown message kind %q", kind)
	}
	td := TemplateData{MessageData: data, Product: t.product}

	var subject, html, text bytes.Buffer
	if err := kt.subject.Execute(&subject, td); err != nil {
		return goCred.Message{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := kt.html.Execute(&html, td); err != nil {
		return goCred.Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := kt.text.Execute(&text, td); err != nil {
		return goCred.Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}

	return goCred.Message{
		To:      data.To,
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type template struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[Kind]template{
	KindVerificationCode: {
		subject: "Your verification code",
		text: texttemplate.Must(texttemplate.New("text").Parse(
			"Hello {{.UserID}},\n\nYour verification code is {{.Code}}. It expires in {{.ExpiresIn}}.\n\nIf you did not sign up, ignore this email.\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>Hello {{.UserID}},</p><p>Your verification code is <strong>{{.Code}}</strong>. It expires in {{.ExpiresIn}}.</p><p>If you did not sign up, ignore this email.</p>`)),
	},
	KindPasswordReset: {
		subject: "Reset your password",
		text: texttemplate.Must(texttemplate.New("text").Parse(
			"Hello {{.UserID}},\n\nOpen this link to choose a new password. It expires in {{.ExpiresIn}}.\n\n{{.ResetLink}}\n\nIf you did not ask for a reset, ignore this email.\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>Hello {{.UserID}},</p><p><a href="{{.ResetLink}}">Choose a new password</a>. The link expires in {{.ExpiresIn}}.</p><p>If you did not ask for a reset, ignore this email.</p>`)),
	},
	KindAccountDeleted: {
		subject: "Your account was deleted",
		text: texttemplate.Must(texttemplate.New("text").Parse(
			"Hello {{.UserID}},\n\nYour account and its data have been deleted. We are sorry to see you go.\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>Hello {{.UserID}},</p><p>Your account and its data have been deleted. We are sorry to see you go.</p>`)),
	},
}

// Render returns the subject and the plain text and HTML bodies for kind.
func Render(kind Kind, payload map[string]string) (subject, text, html string, err error) {
	t, ok := templates[kind]
	if !ok {
		return "", "", "", fmt.Errorf("notification: unknown kind %q", kind)
	}
	var tb, hb bytes.Buffer
	if err := t.text.Execute(&tb, payload); err != nil {
		return "", "", "", fmt.Errorf("notification: render %s text: %w", kind, err)
	}
	if err := t.html.Execute(&hb, payload); err != nil {
		return "", "", "", fmt.Errorf("notification: render %s html: %w", kind, err)
	}
	return t.subject, tb.String(), hb.String(), nil
}

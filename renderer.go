package auth

import (
	"strings"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

// MailTemplate is the subject and text body of one message kind, written in
// django syntax.
type MailTemplate struct {
	Subject string
	Body    string
}

// DefaultMailTemplates are used for kinds without an override.
var DefaultMailTemplates = map[MessageKind]MailTemplate{
	MessageConfirmationInstructions: {
		Subject: "Confirmation instructions",
		Body: `Hi {{ to }},

You can confirm your account email with the following code:

{{ token }}
{% if expires_in_hours %}
The code is valid for {{ expires_in_hours }} hours.
{% endif %}
If you did not request this, you can ignore this email.
`,
	},
	MessageEmailChanged: {
		Subject: "Email changed",
		Body: `Hi {{ email }},

We are contacting you to notify you that your email is being changed to {{ unconfirmed_email }}.

If you did not request this change, please contact us.
`,
	},
	MessageResetPasswordInstructions: {
		Subject: "Reset password instructions",
		Body: `Hi {{ email }},

Someone has requested a link to change your password. Use the following code to do it:

{{ token }}
{% if expires_in_hours %}
The code is valid for {{ expires_in_hours }} hours.
{% endif %}
If you did not request this, please ignore this email. Your password won't change until you use the code above.
`,
	},
	MessageSetPasswordInstructions: {
		Subject: "Set your password",
		Body: `Hi {{ email }},

An account was created for you. Use the following code to choose your password:

{{ token }}
{% if expires_in_hours %}
The code is valid for {{ expires_in_hours }} hours.
{% endif %}`,
	},
}

// Envelope is a rendered message ready for a Transport.
type Envelope struct {
	From    string
	To      string
	Subject string
	Body    string
	Kind    MessageKind
}

// Renderer turns messages into envelopes.
type Renderer struct {
	from      string
	subjects  map[MessageKind]*pongo2.Template
	templates map[MessageKind]*pongo2.Template
}

// NewRenderer compiles the default templates merged with overrides.
func NewRenderer(from string, overrides map[MessageKind]MailTemplate) (*Renderer, error) {
	r := &Renderer{
		from:      from,
		subjects:  map[MessageKind]*pongo2.Template{},
		templates: map[MessageKind]*pongo2.Template{},
	}

	sources := make(map[MessageKind]MailTemplate, len(DefaultMailTemplates))
	for kind, tpl := range DefaultMailTemplates {
		sources[kind] = tpl
	}
	for kind, tpl := range overrides {
		sources[kind] = tpl
	}

	for kind, src := range sources {
		subject, err := pongo2.FromString(src.Subject)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compile mail subject").
				WithMetadata(map[string]any{"kind": string(kind)})
		}
		body, err := pongo2.FromString(src.Body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compile mail body").
				WithMetadata(map[string]any{"kind": string(kind)})
		}
		r.subjects[kind] = subject
		r.templates[kind] = body
	}

	return r, nil
}

// Render builds the envelope for msg.
func (r *Renderer) Render(msg Message) (Envelope, error) {
	subject, ok := r.subjects[msg.Kind]
	body := r.templates[msg.Kind]
	if !ok || body == nil {
		return Envelope{}, goerrors.New("no template for message kind", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"kind": string(msg.Kind)})
	}

	data := pongo2.Context{
		"to":                msg.To,
		"email":             msg.Email,
		"unconfirmed_email": msg.UnconfirmedEmail,
		"token":             msg.Token,
		"expires_in_hours":  int(msg.ExpiresIn.Hours()),
	}

	renderedSubject, err := subject.Execute(data)
	if err != nil {
		return Envelope{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail subject")
	}
	renderedBody, err := body.Execute(data)
	if err != nil {
		return Envelope{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail body")
	}

	return Envelope{
		From:    r.from,
		To:      msg.To,
		Subject: strings.TrimSpace(renderedSubject),
		Body:    renderedBody,
		Kind:    msg.Kind,
	}, nil
}

package mail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

var (
	subjectTmpl = template.Must(template.New("subject").Parse(
		`You have been invited to join {{.SiteName}}`))

	bodyTmpl = template.Must(template.New("body").Parse(`Hello,

You have been invited to create an account on {{.SiteName}}.

Your invitation key is:

    {{.Key}}

The key is valid for {{.ValidDays}} {{if eq .ValidDays 1}}day{{else}}days{{end}} and expires on {{.ExpiresAt.Format "2 January 2006 15:04 MST"}}.

If you were not expecting this email you can ignore it.
`))
)

// Invitation holds what the invitation email needs to render.
type Invitation struct {
	SiteName  string
	Key       string
	ValidDays int
	ExpiresAt time.Time
}

// Compose renders the subject and body of an invitation email. The subject
// never contains a newline.
func (inv Invitation) Compose() (subject, body string, err error) {
	var sb, bb bytes.Buffer
	if err := subjectTmpl.Execute(&sb, inv); err != nil {
		return "", "", fmt.Errorf("render invitation subject: %w", err)
	}
	if err := bodyTmpl.Execute(&bb, inv); err != nil {
		return "", "", fmt.Errorf("render invitation body: %w", err)
	}
	subject = strings.Join(strings.Fields(sb.String()), " ")
	return subject, bb.String(), nil
}

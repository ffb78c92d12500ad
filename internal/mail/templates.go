package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateAdminInvitation  = "admin_invitation"
	TemplatePermissionUpdate = "permission_update"
	TemplateAccountStatus    = "account_status"
	TemplateWaitlistWelcome  = "waitlist_welcome"
	TemplateWaitlistLaunch   = "waitlist_launch"
	TemplateTest             = "test"
)

// Templates renders the notification emails.
type Templates struct {
	tpl       *template.Template
	portalURL string
	now       func() time.Time
}

// NewTemplates parses the embedded email templates.
func NewTemplates(portalURL string) (*Templates, error) {
	tpl, err := template.New("mail").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse templates: %w", err)
	}
	return &Templates{tpl: tpl, portalURL: portalURL, now: time.Now}, nil
}

// InvitationData fills the admin invitation email.
type InvitationData struct {
	FullName          string
	Email             string
	Role              string
	InviterName       string
	TemporaryPassword string
	ExpiresAt         time.Time
}

// PermissionChangeLine is one changed grant in the permission email.
type PermissionChangeLine struct {
	Module   string
	Action   string
	OldValue bool
	NewValue bool
}

// PermissionUpdateData fills the permission update email.
type PermissionUpdateData struct {
	FullName  string
	ChangedBy string
	Changes   []PermissionChangeLine
}

// AccountStatusData fills the activation/deactivation email.
type AccountStatusData struct {
	FullName  string
	Active    bool
	ChangedBy string
}

// WaitlistWelcomeData fills the waitlist confirmation email.
type WaitlistWelcomeData struct {
	Name     string
	Position int
}

// WaitlistLaunchData fills the launch announcement.
type WaitlistLaunchData struct {
	Name         string
	DownloadLink string
}

// AdminInvitation renders the invitation email.
func (t *Templates) AdminInvitation(to string, data InvitationData) (Message, error) {
	return t.render(to, "You've been invited to SafeSpora Admin", TemplateAdminInvitation, data)
}

// PermissionUpdate renders the permission change email.
func (t *Templates) PermissionUpdate(to string, data PermissionUpdateData) (Message, error) {
	return t.render(to, "Your SafeSpora Admin permissions have been updated", TemplatePermissionUpdate, data)
}

// AccountStatus renders the activation/deactivation email.
func (t *Templates) AccountStatus(to string, data AccountStatusData) (Message, error) {
	subject := "Your SafeSpora Admin account has been deactivated"
	if data.Active {
		subject = "Your SafeSpora Admin account has been activated"
	}
	return t.render(to, subject, TemplateAccountStatus, data)
}

// WaitlistWelcome renders the waitlist confirmation.
func (t *Templates) WaitlistWelcome(to string, data WaitlistWelcomeData) (Message, error) {
	return t.render(to, "You're on the SafeSpora waitlist", TemplateWaitlistWelcome, data)
}

// WaitlistLaunch renders the launch announcement.
func (t *Templates) WaitlistLaunch(to string, data WaitlistLaunchData) (Message, error) {
	return t.render(to, "SafeSpora is live", TemplateWaitlistLaunch, data)
}

// Test renders the operator test email.
func (t *Templates) Test(to string) (Message, error) {
	return t.render(to, "SafeSpora mail test", TemplateTest, nil)
}

func (t *Templates) render(to, subject, name string, data any) (Message, error) {
	var buf bytes.Buffer
	payload := map[string]any{
		"Data":      data,
		"PortalURL": t.portalURL,
		"Year":      t.now().Year(),
	}
	if err := t.tpl.ExecuteTemplate(&buf, name, payload); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String(), Template: name}, nil
}

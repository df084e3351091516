package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log"
	texttemplate "text/template"
	"time"

	"github.com/brothersgym/backoffice/internal/calendar"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/infrastructure/email"
)

//go:embed templates/*.html
var templateFS embed.FS

// mailTemplate pairs an HTML body file with its subject and plain-text fallback.
// Subject and PlainBody are text/template sources executed with the same data.
type mailTemplate struct {
	File      string
	Title     string
	Subject   string
	PlainBody string
}

var (
	welcomeMail = mailTemplate{
		File:      "welcome.html",
		Title:     "Welcome aboard",
		Subject:   "Welcome to {{.GymName}}!",
		PlainBody: "Hi {{.Admin.FullName}}, your back-office account is ready: {{.ClientURL}}/login",
	}
	newMemberMail = mailTemplate{
		File:      "new_member.html",
		Title:     "New member",
		Subject:   "New Member Joined: {{.Member.FullName}}",
		PlainBody: "{{.Member.FullName}} ({{.Member.Phone}}) joined for {{.DurationMonths}} month(s), until {{.EndDate}}.",
	}
	membershipRenewedMail = mailTemplate{
		File:      "membership_renewed.html",
		Title:     "Membership renewed",
		Subject:   "Membership Renewed: {{.Member.FullName}}",
		PlainBody: "{{.Member.FullName}} added {{.MonthsAdded}} month(s). New end date: {{.NewEndDate}}.",
	}
	resetPasswordMail = mailTemplate{
		File:      "reset_password.html",
		Title:     "Reset your password",
		Subject:   "Reset your password - {{.GymName}}",
		PlainBody: "Reset your password within {{.ValidFor}}: {{.Link}}",
	}
	passwordChangedMail = mailTemplate{
		File:      "password_changed.html",
		Title:     "Password changed",
		Subject:   "Your password has been changed",
		PlainBody: "The password of your account was changed on {{.ChangedAt}}.",
	}
	confirmEmailMail = mailTemplate{
		File:      "confirm_email.html",
		Title:     "Confirm your new email",
		Subject:   "Confirm your new email address",
		PlainBody: "Confirm {{.NewEmail}} within {{.ValidFor}}: {{.Link}}",
	}
)

// NotifierConfig holds the addresses the notifier links to and writes to
type NotifierConfig struct {
	GymName    string
	ClientURL  string
	AdminEmail string // recipient of member notices; empty disables them
}

// Notifier renders and sends the transactional emails of the back office.
// Delivery problems are logged and never returned.
type Notifier struct {
	sender    email.Sender
	cal       calendar.Converter
	cfg       NotifierConfig
	templates map[string]*htmltemplate.Template
}

func NewNotifier(sender email.Sender, cal calendar.Converter, cfg NotifierConfig) (*Notifier, error) {
	n := &Notifier{
		sender:    sender,
		cal:       cal,
		cfg:       cfg,
		templates: make(map[string]*htmltemplate.Template),
	}
	for _, mt := range []mailTemplate{welcomeMail, newMemberMail, membershipRenewedMail, resetPasswordMail, passwordChangedMail, confirmEmailMail} {
		tmpl, err := htmltemplate.ParseFS(templateFS, "templates/layout.html", "templates/"+mt.File)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mail template %s: %w", mt.File, err)
		}
		n.templates[mt.File] = tmpl
	}
	return n, nil
}

type mailBase struct {
	Title     string
	GymName   string
	ClientURL string
}

type memberMailData struct {
	mailBase
	Member         *domain.Member
	StartDate      string
	EndDate        string
	DurationMonths int
	Amount         float64
	Method         domain.PaymentMethod
}

type renewalMailData struct {
	mailBase
	Member      *domain.Member
	OldEndDate  string
	NewEndDate  string
	MonthsAdded int
	Amount      float64
	Method      domain.PaymentMethod
	Extended    bool
}

type adminMailData struct {
	mailBase
	Admin     *domain.Admin
	Link      string
	ValidFor  string
	ChangedAt string
	NewEmail  string
}

// NewMember tells the gym that a member joined
func (n *Notifier) NewMember(ctx context.Context, member *domain.Member) {
	data := memberMailData{Member: member}
	if m := member.Membership; !m.IsZero() {
		data.StartDate = n.cal.Format(m.StartDate)
		data.EndDate = n.cal.Format(m.EndDate)
		data.DurationMonths = m.DurationMonths
	}
	if p := member.LatestPayment(); p != nil {
		data.Amount = p.Amount
		data.Method = p.Method
	}
	n.sendToAdmin(ctx, newMemberMail, &data.mailBase, &data)
}

// MembershipRenewed tells the gym that a member renewed
func (n *Notifier) MembershipRenewed(ctx context.Context, member *domain.Member, notice domain.RenewalNotice) {
	data := renewalMailData{
		Member:      member,
		NewEndDate:  n.cal.Format(notice.NewEndDate),
		MonthsAdded: notice.MonthsAdded,
		Amount:      notice.Amount,
		Method:      notice.Method,
		Extended:    notice.Extended,
	}
	if notice.OldEndDate != nil {
		data.OldEndDate = n.cal.Format(*notice.OldEndDate)
	}
	n.sendToAdmin(ctx, membershipRenewedMail, &data.mailBase, &data)
}

// Welcome greets a newly created admin
func (n *Notifier) Welcome(ctx context.Context, admin *domain.Admin) {
	data := adminMailData{Admin: admin}
	n.send(ctx, admin.Email, welcomeMail, &data.mailBase, &data)
}

// PasswordReset mails the reset link to the admin
func (n *Notifier) PasswordReset(ctx context.Context, admin *domain.Admin, link string, validFor time.Duration) {
	data := adminMailData{Admin: admin, Link: link, ValidFor: humanDuration(validFor)}
	n.send(ctx, admin.Email, resetPasswordMail, &data.mailBase, &data)
}

// PasswordChanged confirms a password change to the admin
func (n *Notifier) PasswordChanged(ctx context.Context, admin *domain.Admin, at time.Time) {
	data := adminMailData{Admin: admin, ChangedAt: n.cal.Format(at) + " " + at.In(n.cal.Location()).Format("15:04")}
	n.send(ctx, admin.Email, passwordChangedMail, &data.mailBase, &data)
}

// ConfirmEmailChange mails the confirmation link to the new address
func (n *Notifier) ConfirmEmailChange(ctx context.Context, admin *domain.Admin, newEmail, link string, validFor time.Duration) {
	data := adminMailData{Admin: admin, NewEmail: newEmail, Link: link, ValidFor: humanDuration(validFor)}
	n.send(ctx, newEmail, confirmEmailMail, &data.mailBase, &data)
}

func (n *Notifier) sendToAdmin(ctx context.Context, mt mailTemplate, base *mailBase, data any) {
	if n.cfg.AdminEmail == "" {
		return
	}
	n.send(ctx, n.cfg.AdminEmail, mt, base, data)
}

// send fills base before rendering; data must point at the struct embedding base
func (n *Notifier) send(ctx context.Context, to string, mt mailTemplate, base *mailBase, data any) {
	base.Title = mt.Title
	base.GymName = n.cfg.GymName
	base.ClientURL = n.cfg.ClientURL

	msg, err := n.render(mt, data)
	if err != nil {
		log.Printf("[Notifier] failed to render %s: %v", mt.File, err)
		return
	}
	msg.To = []string{to}

	if err := n.sender.Send(ctx, *msg); err != nil {
		log.Printf("[Notifier] failed to send %s to %s: %v", mt.File, to, err)
	}
}

func (n *Notifier) render(mt mailTemplate, data any) (*email.Message, error) {
	var html bytes.Buffer
	if err := n.templates[mt.File].ExecuteTemplate(&html, "layout", data); err != nil {
		return nil, err
	}
	subject, err := execText(mt.Subject, data)
	if err != nil {
		return nil, err
	}
	plain, err := execText(mt.PlainBody, data)
	if err != nil {
		return nil, err
	}
	return &email.Message{Subject: subject, HTML: html.String(), Text: plain}, nil
}

func execText(src string, data any) (string, error) {
	tmpl, err := texttemplate.New("").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hour(s)", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}

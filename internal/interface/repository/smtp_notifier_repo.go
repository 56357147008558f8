package repository

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/internal/domain/repository"
	"nestcheckout-service/pkg/logger"
)

// SMTPNotifierRepository delivers checkout outcome records by email.
type SMTPNotifierRepository struct {
	enabled   bool
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	toEmail   string
	logger    logger.Logger

	// send is swapped out in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// SMTPConfig carries the notifier settings.
type SMTPConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	ToEmail   string
}

// NewSMTPNotifierRepository creates an email notification sink.
func NewSMTPNotifierRepository(cfg SMTPConfig, logger logger.Logger) *SMTPNotifierRepository {
	return &SMTPNotifierRepository{
		enabled:   cfg.Enabled,
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		fromEmail: cfg.FromEmail,
		toEmail:   cfg.ToEmail,
		logger:    logger,
		send:      smtp.SendMail,
	}
}

var _ repository.Notifier = (*SMTPNotifierRepository)(nil)

// IsConfigured reports whether notifications are enabled and every
// required SMTP setting is present.
func (r *SMTPNotifierRepository) IsConfigured() bool {
	if !r.enabled {
		return false
	}
	return r.host != "" && r.port != 0 && r.username != "" && r.password != "" && r.toEmail != ""
}

// SendCheckoutNotification emails the per-device outcome of one processed
// checkout event.
func (r *SMTPNotifierRepository) SendCheckoutNotification(ctx context.Context, result *entity.ActionResult) error {
	if !r.IsConfigured() {
		r.logger.Debug("Email notifications not configured, skipping")
		return nil
	}

	subject := fmt.Sprintf("Thermostats Turned Off - %s", result.PropertyName)
	if !result.Succeeded() {
		subject = fmt.Sprintf("Thermostat Warning - %s", result.PropertyName)
	}

	body := r.buildBody(result)

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", r.fromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", r.toEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", r.host, r.port)
	auth := smtp.PlainAuth("", r.username, r.password, r.host)

	if err := r.send(addr, auth, r.fromEmail, []string{r.toEmail}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send notification email: %w", err)
	}

	r.logger.Info("Notification email sent",
		"to", r.toEmail,
		"reservationID", result.ReservationID,
		"subject", subject)
	return nil
}

func (r *SMTPNotifierRepository) buildBody(result *entity.ActionResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Guest checkout detected at %s.\n\n", result.PropertyName)
	fmt.Fprintf(&b, "Guest: %s\n", result.GuestName)
	fmt.Fprintf(&b, "Reservation: %s\n", result.ReservationID)
	fmt.Fprintf(&b, "Checkout time: %s\n\n", result.EventTime.Format("2006-01-02 03:04 PM MST"))

	if result.Error != "" {
		fmt.Fprintf(&b, "Action failed: %s\n", result.Error)
		return b.String()
	}

	b.WriteString("Thermostat results:\n")
	names := make([]string, 0, len(result.NamedResults))
	for name := range result.NamedResults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := "turned off"
		if !result.NamedResults[name] {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "  - %s: %s\n", name, status)
	}

	fmt.Fprintf(&b, "\n%d turned off, %d failed.\n", result.ThermostatsOff, result.ThermostatsFailed)
	return b.String()
}

package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Provider error codes. INVALID_EMAIL is permanent.
const (
	ErrCodeInvalidEmail = "INVALID_EMAIL"
	ErrCodeUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeUnknown      = "EMAIL_FAILED"
)

type Mailer interface {
	SendEmail(ctx context.Context, request *EmailRequest) (*EmailResponse, error)
}

type EmailRequest struct {
	To       string            `json:"to"`
	ToName   string            `json:"to_name,omitempty"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	HTMLBody string            `json:"html_body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type EmailResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	SSL       bool
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	dialer   dialer
	from     string
	fromName string
	domain   string
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}

	return &SMTPMailer{
		dialer:   d,
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
		domain:   domainOf(cfg.FromEmail),
	}
}

func (s *SMTPMailer) SendEmail(ctx context.Context, request *EmailRequest) (*EmailResponse, error) {
	if _, err := mail.ParseAddress(request.To); err != nil {
		err = fmt.Errorf("invalid recipient %q: %w", request.To, err)
		return failure(ErrCodeInvalidEmail, err), err
	}
	if err := ctx.Err(); err != nil {
		return failure(ErrCodeUnavailable, err), err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetAddressHeader("To", request.To, request.ToName)
	m.SetHeader("Subject", request.Subject)
	m.SetHeader("Message-ID", messageID)
	for key, value := range request.Headers {
		m.SetHeader(key, value)
	}
	m.SetBody("text/plain", request.Body)
	if request.HTMLBody != "" {
		m.AddAlternative("text/html", request.HTMLBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		return failure(classifySMTPError(err), err), err
	}

	return &EmailResponse{
		MessageID: messageID,
		Success:   true,
	}, nil
}

// classifySMTPError inspects the SMTP reply code; gomail flattens the
// underlying textproto error into its message.
func classifySMTPError(err error) string {
	msg := err.Error()
	for _, code := range []string{"550", "551", "553", "501"} {
		if strings.Contains(msg, code+" ") {
			return ErrCodeInvalidEmail
		}
	}
	for _, code := range []string{"421", "450", "451", "452"} {
		if strings.Contains(msg, code+" ") {
			return ErrCodeUnavailable
		}
	}
	if strings.Contains(msg, "dial") || strings.Contains(msg, "timeout") {
		return ErrCodeUnavailable
	}
	return ErrCodeUnknown
}

func failure(code string, err error) *EmailResponse {
	return &EmailResponse{
		Success:   false,
		ErrorCode: code,
		Error:     err.Error(),
	}
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

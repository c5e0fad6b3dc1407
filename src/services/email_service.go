// backend/src/services/email_service.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/shopspring/decimal"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/models"
)

type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendPasswordResetEmail(toEmail, username, token string) error
	SendTaxSummaryEmail(toEmail, username string, summary *models.TaxYearSummary) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{
				VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
				PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
			}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:                       mg,
			senderEmail:              config.Cfg.SenderEmail,
			senderName:               config.Cfg.SenderName,
			verificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{
				VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
				PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
			}
		}
		return &SMTPEmailService{
			SMTPServer:               config.Cfg.SMTPServer,
			SMTPPort:                 config.Cfg.SMTPPort,
			SMTPUser:                 config.Cfg.SMTPUser,
			SMTPPassword:             config.Cfg.SMTPPassword,
			SenderEmail:              config.Cfg.SenderEmail,
			VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{
			VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	}
}

// formatUSD renders a decimal amount the way a person expects to read money
// in an email, e.g. -$1,234.56.
func formatUSD(amount decimal.Decimal) string {
	cents := amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
	return money.New(cents, money.USD).Display()
}

func taxSummaryBody(username string, summary *models.TaxYearSummary) string {
	return fmt.Sprintf(`Hi %s,

Your %d tax summary is ready on Gainfolio.

Total proceeds:        %s
Total cost basis:      %s
Short-term net:        %s
Long-term net:         %s
Wash sales disallowed: %s
Adjusted net gain:     %s

Sign in to review the full capital gains detail and Form 8949 export.

Thanks,
The Gainfolio Team`,
		username,
		summary.TaxYear,
		formatUSD(summary.TotalProceeds),
		formatUSD(summary.TotalCostBasis),
		formatUSD(summary.ShortTerm.Net),
		formatUSD(summary.LongTerm.Net),
		formatUSD(summary.WashSaleDisallowed),
		formatUSD(summary.AdjustedNetGainLoss))
}

type SMTPEmailService struct {
	SMTPServer               string
	SMTPPort                 int
	SMTPUser                 string
	SMTPPassword             string
	SenderEmail              string
	VerificationEmailBaseURL string
	PasswordResetBaseURL     string
}

func (s *SMTPEmailService) sendPlain(toEmail, subject, body string) error {
	header := make(map[string]string)
	header["From"] = s.SenderEmail
	header["To"] = toEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body

	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	return smtp.SendMail(addr, auth, s.SenderEmail, []string{toEmail}, []byte(message))
}

func (s *SMTPEmailService) SendVerificationEmail(toEmail, username, token string) error {
	subject := "Verify Your Email Address for Gainfolio (SMTP)"
	verificationLink := fmt.Sprintf("%s?token=%s", s.VerificationEmailBaseURL, token)
	body := fmt.Sprintf(`Hi %s, Please verify your email by clicking this link: %s Thanks, The Gainfolio Team (via SMTP)`, username, verificationLink)

	if err := s.sendPlain(toEmail, subject, body); err != nil {
		logger.L.Error("Failed to send verification email via SMTP", "error", err, "to", toEmail)
		return fmt.Errorf("failed to send verification email via SMTP: %w", err)
	}
	logger.L.Info("Verification email sent successfully via SMTP", "to", toEmail)
	return nil
}

func (s *SMTPEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	subject := "Password Reset Request for Gainfolio (SMTP)"
	resetLink := fmt.Sprintf("%s?token=%s", s.PasswordResetBaseURL, token)
	body := fmt.Sprintf(`Hi %s,

    You requested a password reset for your Gainfolio account.
    Please click the following link to reset your password:
    %s

    If you did not request a password reset, please ignore this email. This link will expire in %s.

    Thanks,
    The Gainfolio Team (via SMTP)`, username, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	if err := s.sendPlain(toEmail, subject, body); err != nil {
		logger.L.Error("Failed to send password reset email via SMTP", "error", err, "to", toEmail)
		return fmt.Errorf("failed to send password reset email via SMTP: %w", err)
	}
	logger.L.Info("Password reset email sent successfully via SMTP", "to", toEmail)
	return nil
}

func (s *SMTPEmailService) SendTaxSummaryEmail(toEmail, username string, summary *models.TaxYearSummary) error {
	subject := fmt.Sprintf("Your %d Tax Summary from Gainfolio (SMTP)", summary.TaxYear)

	if err := s.sendPlain(toEmail, subject, taxSummaryBody(username, summary)); err != nil {
		logger.L.Error("Failed to send tax summary email via SMTP", "error", err, "to", toEmail)
		return fmt.Errorf("failed to send tax summary email via SMTP: %w", err)
	}
	logger.L.Info("Tax summary email sent successfully via SMTP", "to", toEmail, "taxYear", summary.TaxYear)
	return nil
}

type MailgunEmailService struct {
	mg                       mailgun.Mailgun
	senderEmail              string
	senderName               string
	verificationEmailBaseURL string
	PasswordResetBaseURL     string
}

func (s *MailgunEmailService) SendVerificationEmail(toEmail, username, token string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := "Verify Your Email Address for Gainfolio"
	recipient := toEmail

	verificationLink := fmt.Sprintf("%s?token=%s", s.verificationEmailBaseURL, token)

	plainTextBody := fmt.Sprintf(`Hi %s,

Welcome to Gainfolio! Please verify your email address by clicking the link below:
%s

If you did not create an account using this email address, please ignore this email.

Thanks,
The Gainfolio Team`, username, verificationLink)

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p>Welcome to Gainfolio! Please verify your email address by clicking the link below:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8; text-decoration: none; font-weight: bold; padding: 10px 15px; border: 1px solid #1a73e8; border-radius: 4px; background-color: #e8f0fe;">Verify Email Address</a></p>
			<p>If the button above doesn't work, you can copy and paste the following URL into your browser's address bar:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8;">%s</a></p>
			<p>If you did not create an account using this email address, please ignore this email.</p>
			<p>Thanks,<br>The Gainfolio Team</p>
		</body>
	</html>`, username, verificationLink, verificationLink, verificationLink)

	message := s.mg.NewMessage(from, subject, plainTextBody, recipient)
	message.SetHtml(htmlBody)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send verification email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Verification email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

func (s *MailgunEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := "Password Reset Request for Gainfolio"
	recipient := toEmail

	resetLink := fmt.Sprintf("%s?token=%s", s.PasswordResetBaseURL, token)

	plainTextBody := fmt.Sprintf(`Hi %s,

    You requested a password reset for your Gainfolio account.
    Please click the following link to reset your password:
    %s

    If you did not request a password reset, please ignore this email. This link will expire in %s.

    Thanks,
    The Gainfolio Team`, username, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p>You requested a password reset for your Gainfolio account. Please click the button below to reset your password:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8; text-decoration: none; font-weight: bold; padding: 10px 15px; border: 1px solid #1a73e8; border-radius: 4px; background-color: #e8f0fe;">Reset Password</a></p>
			<p>If the button above doesn't work, copy and paste this link into your browser:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8;">%s</a></p>
			<p>If you did not request this reset, please ignore this email. This link will expire in %s.</p>
			<p>Thanks,<br>The Gainfolio Team</p>
		</body>
	</html>`, username, resetLink, resetLink, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	message := s.mg.NewMessage(from, subject, plainTextBody, recipient)
	message.SetHtml(htmlBody)
	message.AddTag("password-reset")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send password reset email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for password reset: %w. Response: %s", err, resp)
	}

	logger.L.Info("Password reset email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

func (s *MailgunEmailService) SendTaxSummaryEmail(toEmail, username string, summary *models.TaxYearSummary) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := fmt.Sprintf("Your %d Tax Summary from Gainfolio", summary.TaxYear)
	recipient := toEmail

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p>Your %d tax summary is ready on Gainfolio.</p>
			<table style="border-collapse: collapse;">
				<tr><td style="padding: 4px 12px 4px 0;">Total proceeds</td><td style="padding: 4px 0;">%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0;">Total cost basis</td><td style="padding: 4px 0;">%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0;">Short-term net</td><td style="padding: 4px 0;">%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0;">Long-term net</td><td style="padding: 4px 0;">%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0;">Wash sales disallowed</td><td style="padding: 4px 0;">%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0;"><b>Adjusted net gain</b></td><td style="padding: 4px 0;"><b>%s</b></td></tr>
			</table>
			<p>Sign in to review the full capital gains detail and Form 8949 export.</p>
			<p>Thanks,<br>The Gainfolio Team</p>
		</body>
	</html>`,
		username,
		summary.TaxYear,
		formatUSD(summary.TotalProceeds),
		formatUSD(summary.TotalCostBasis),
		formatUSD(summary.ShortTerm.Net),
		formatUSD(summary.LongTerm.Net),
		formatUSD(summary.WashSaleDisallowed),
		formatUSD(summary.AdjustedNetGainLoss))

	message := s.mg.NewMessage(from, subject, taxSummaryBody(username, summary), recipient)
	message.SetHtml(htmlBody)
	message.AddTag("tax-summary")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send tax summary email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for tax summary: %w. Response: %s", err, resp)
	}

	logger.L.Info("Tax summary email sent successfully via Mailgun", "to", toEmail, "id", id, "taxYear", summary.TaxYear)
	return nil
}

type MockEmailService struct {
	VerificationEmailBaseURL string
	PasswordResetBaseURL     string
}

func (m *MockEmailService) SendVerificationEmail(toEmail, username, token string) error {
	verificationLink := "MOCK_VERIFICATION_LINK_NOT_CONFIGURED_IN_MOCK_STRUCT"
	if m.VerificationEmailBaseURL != "" {
		verificationLink = fmt.Sprintf("%s?token=%s", m.VerificationEmailBaseURL, token)
	} else if config.Cfg != nil && config.Cfg.VerificationEmailBaseURL != "" {
		verificationLink = fmt.Sprintf("%s?token=%s", config.Cfg.VerificationEmailBaseURL, token)
	}
	logMsg := "MockEmailService: Would send verification email."
	logger.L.Info(logMsg, "to", toEmail, "username", username, "verificationLink", verificationLink)
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	resetLink := "MOCK_PASSWORD_RESET_LINK_NOT_CONFIGURED_IN_MOCK_STRUCT"
	expiry := "an hour (default)"
	if m.PasswordResetBaseURL != "" {
		resetLink = fmt.Sprintf("%s?token=%s", m.PasswordResetBaseURL, token)
	} else if config.Cfg != nil && config.Cfg.PasswordResetBaseURL != "" {
		resetLink = fmt.Sprintf("%s?token=%s", config.Cfg.PasswordResetBaseURL, token)
	}
	if config.Cfg != nil {
		expiry = config.Cfg.PasswordResetTokenExpiry.String()
	}

	logMsg := "MockEmailService: Would send password reset email."
	logger.L.Info(logMsg, "to", toEmail, "username", username, "resetLink", resetLink, "expiresIn", expiry)
	return nil
}

func (m *MockEmailService) SendTaxSummaryEmail(toEmail, username string, summary *models.TaxYearSummary) error {
	logMsg := "MockEmailService: Would send tax summary email."
	logger.L.Info(logMsg, "to", toEmail, "username", username, "taxYear", summary.TaxYear, "adjustedNet", formatUSD(summary.AdjustedNetGainLoss))
	return nil
}

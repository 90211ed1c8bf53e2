package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/strogmv/fanout/internal/port"
)

type Client struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(host, port, username, password, from string) *Client {
	return &Client{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		send:     smtp.SendMail,
	}
}

func (c *Client) Send(ctx context.Context, msg port.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("smtp: no recipients")
	}
	from := c.From
	if from == "" {
		from = c.Username
	}
	if from == "" {
		return fmt.Errorf("smtp from not configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", strings.Join(msg.To, ", ")),
		fmt.Sprintf("Subject: %s", sanitizeHeader(msg.Subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	data := strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Text

	var auth smtp.Auth
	if c.Username != "" || c.Password != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Host)
	}
	send := c.send
	if send == nil {
		send = smtp.SendMail
	}
	return send(c.Host+":"+c.Port, auth, from, msg.To, []byte(data))
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

var _ port.Mailer = (*Client)(nil)

package shipper

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/config"
	"github.com/obsidianstack/lookerhealth/agent/internal/render"
	"github.com/obsidianstack/lookerhealth/agent/internal/report"
)

// sendMailFunc matches smtp.SendMail, which upgrades to STARTTLS when the
// server offers it.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type emailTarget struct {
	cfg  config.EmailConfig
	loc  *time.Location
	send sendMailFunc
}

func newEmailTarget(cfg config.EmailConfig, loc *time.Location) *emailTarget {
	return &emailTarget{cfg: cfg, loc: loc, send: smtp.SendMail}
}

func (e *emailTarget) Name() string { return "email" }

func (e *emailTarget) Send(ctx context.Context, rep *report.Report, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := e.cfg.Recipients()
	if len(to) == 0 {
		return permanent(fmt.Errorf("no recipients"))
	}

	msg, err := e.message(rep, to, html)
	if err != nil {
		return permanent(err)
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password(), e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	if err := e.send(addr, auth, e.cfg.From, to, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

// message builds an RFC 5322 message with a quoted-printable HTML body.
func (e *emailTarget) message(rep *report.Report, to []string, html string) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", e.cfg.From)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", render.Subject(e.cfg.Subject, rep, e.loc)))
	header("Date", rep.GeneratedAt.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(html)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

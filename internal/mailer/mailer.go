// internal/mailer/mailer.go
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Notifier delivers a single message. Implementations honour ctx deadlines.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From and Reply-To of outgoing mail.
type Sender struct {
	Name    string
	Email   string
	ReplyTo string
}

func (s Sender) address() string {
	return (&mail.Address{Name: s.Name, Address: s.Email}).String()
}

// Compose renders msg as an RFC 5322 message with a text/plain alternative
// derived from the HTML body when none is given.
func Compose(from Sender, msg Message, now time.Time) ([]byte, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	text := msg.Text
	if text == "" && msg.HTML != "" {
		plain, err := html2text.FromString(msg.HTML, html2text.Options{PrettyTables: true})
		if err != nil {
			return nil, fmt.Errorf("failed to derive plain text body: %w", err)
		}
		text = plain
	}

	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + from.address(),
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"Message-ID: " + messageID(from.Email),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mixed.Boundary(),
	}
	if from.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+from.ReplyTo)
	}

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")

	var altBuf bytes.Buffer
	alternative := multipart.NewWriter(&altBuf)
	if err := writeQuotedPrintable(alternative, "text/plain; charset=utf-8", text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writeQuotedPrintable(alternative, "text/html; charset=utf-8", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := alternative.Close(); err != nil {
		return nil, err
	}

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", "multipart/alternative; boundary="+alternative.Boundary())
	altPart, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func writeQuotedPrintable(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": att.Filename}))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
	h.Set("Content-Transfer-Encoding", "base64")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = part.Write([]byte(encoded + "\r\n"))
	return err
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

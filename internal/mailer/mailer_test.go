// internal/mailer/mailer_test.go
package mailer

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeBuildsAlternativeAndAttachment(t *testing.T) {
	sender := Sender{Name: "IDLab", Email: "noreply@idlab.studio", ReplyTo: "support@idlab.studio"}
	msg := Message{
		To:      "jane@example.com",
		Subject: "Your IDLab license is ready",
		HTML:    "<h1>Welcome</h1><p>Your key is <strong>ABCD-EFGH-IJKL-MNOP</strong></p>",
		Attachments: []Attachment{
			{Filename: "IDLab-Receipt-1.pdf", ContentType: "application/pdf", Data: bytes.Repeat([]byte("%PDF"), 100)},
		},
	}

	raw, err := Compose(sender, msg, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", parsed.Header.Get("To"))
	assert.Equal(t, "support@idlab.studio", parsed.Header.Get("Reply-To"))
	assert.Contains(t, parsed.Header.Get("From"), "noreply@idlab.studio")

	decoder := new(mime.WordDecoder)
	subject, err := decoder.DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])

	first, err := reader.NextPart()
	require.NoError(t, err)
	altType, altParams, err := mime.ParseMediaType(first.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", altType)

	altReader := multipart.NewReader(first, altParams["boundary"])
	textPart, err := altReader.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(textPart.Header.Get("Content-Type"), "text/plain"))
	text, err := io.ReadAll(textPart)
	require.NoError(t, err)
	assert.Contains(t, string(text), "ABCD-EFGH-IJKL-MNOP")

	htmlPart, err := altReader.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(htmlPart.Header.Get("Content-Type"), "text/html"))

	attachment, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "IDLab-Receipt-1.pdf", attachment.FileName())
	assert.Equal(t, "base64", attachment.Header.Get("Content-Transfer-Encoding"))

	_, err = reader.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestComposeRejectsInvalidRecipient(t *testing.T) {
	_, err := Compose(Sender{Email: "noreply@idlab.studio"}, Message{To: "not-an-address", Subject: "x"}, time.Now())
	assert.Error(t, err)
}

// internal/handlers/approval_pages.go
package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type pageKind string

const (
	pageSuccess pageKind = "success"
	pageError   pageKind = "error"
	pageInfo    pageKind = "info"
)

var pageTitles = map[pageKind]string{
	pageSuccess: "Thank you",
	pageError:   "This link cannot be used",
	pageInfo:    "Nothing left to do",
}

type linkPage struct {
	Kind    pageKind
	Title   string
	Message string
	Product string
	Support string
	Form    *reasonForm
}

// reasonForm collects the rejection reason before a reject link is applied.
type reasonForm struct {
	Action    string
	ID        string
	Token     string
	Type      string
	Requester string
	Reason    string
	Error     string
}

func renderLinkPage(c *gin.Context, status int, page linkPage) {
	if page.Title == "" {
		page.Title = pageTitles[page.Kind]
	}

	var buf bytes.Buffer
	if err := linkPageTemplate.Execute(&buf, page); err != nil {
		logrus.WithError(err).Error("Failed to render approval page")
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	// The URL carries the link token.
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

var linkPageTemplate = template.Must(template.New("approval_page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | {{.Product}}</title>
<style>
  body { font-family: Arial, sans-serif; background: #f4f6f8; color: #333; margin: 0; padding: 40px 16px; }
  .card { max-width: 520px; margin: 0 auto; background: #fff; border-radius: 8px; padding: 32px; box-shadow: 0 2px 8px rgba(0,0,0,.08); }
  .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 12px; text-transform: uppercase; letter-spacing: .05em; }
  .success .badge { background: #e6f4ea; color: #1e7e34; }
  .error .badge { background: #fdecea; color: #b3261e; }
  .info .badge { background: #e8f0fe; color: #1a56db; }
  h1 { font-size: 22px; margin: 16px 0 8px; }
  dl { margin: 16px 0; } dt { font-weight: bold; } dd { margin: 0 0 8px; }
  textarea { width: 100%; min-height: 120px; box-sizing: border-box; padding: 8px; font: inherit; }
  .form-error { color: #b3261e; margin: 8px 0; }
  button { background: #b3261e; color: #fff; border: 0; border-radius: 4px; padding: 10px 20px; font-size: 15px; cursor: pointer; }
  footer { margin-top: 24px; font-size: 12px; color: #777; }
</style>
</head>
<body>
<div class="card {{.Kind}}">
  <span class="badge">{{.Kind}}</span>
  <h1>{{.Title}}</h1>
  {{if .Message}}<p>{{.Message}}</p>{{end}}
  {{with .Form}}
  <dl>
    {{if .Type}}<dt>Request</dt><dd>{{.Type}}</dd>{{end}}
    {{if .Requester}}<dt>Requested by</dt><dd>{{.Requester}}</dd>{{end}}
  </dl>
  <form method="POST" action="{{.Action}}">
    <input type="hidden" name="id" value="{{.ID}}">
    <input type="hidden" name="token" value="{{.Token}}">
    <label for="reason">Reason for rejecting</label>
    <textarea id="reason" name="reason" required>{{.Reason}}</textarea>
    {{if .Error}}<p class="form-error">{{.Error}}</p>{{end}}
    <button type="submit">Reject request</button>
  </form>
  {{end}}
  <footer>{{.Product}}{{if .Support}} &middot; {{.Support}}{{end}}</footer>
</div>
</body>
</html>
`))

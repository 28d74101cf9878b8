// page.go -- Minimal HTML page embedding the Telegram Login Widget.
package widget

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
)

// ScriptURL is the official widget script.
const ScriptURL = "https://telegram.org/js/telegram-widget.js?22"

// ErrMissingBot is returned by Build when no bot handle is given.
var ErrMissingBot = errors.New("widget: bot handle is required")

// html/template escapes bot and callback per attribute context;
// the bot handle can come from a query parameter.
var pageTmpl = template.Must(template.New("widget").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="referrer" content="no-referrer">
<title>Log in with Telegram</title>
<style>body{display:flex;min-height:100vh;margin:0;align-items:center;justify-content:center;font-family:sans-serif}</style>
</head>
<body>
<script async src="{{.Script}}" data-telegram-login="{{.Bot}}" data-size="large" data-radius="8" data-auth-url="{{.CallbackURL}}" data-request-access="write"></script>
</body>
</html>
`))

type page struct {
	Script      string
	Bot         string
	CallbackURL string
}

// Build renders the widget page for bot, with callbackURL as the widget's auth endpoint.
func Build(bot, callbackURL string) ([]byte, error) {
	if bot == "" {
		return nil, ErrMissingBot
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, page{Script: ScriptURL, Bot: bot, CallbackURL: callbackURL}); err != nil {
		return nil, fmt.Errorf("rendering widget page: %w", err)
	}
	return buf.Bytes(), nil
}

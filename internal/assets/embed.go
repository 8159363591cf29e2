// Package assets serves the embedded browser chat widget. The widget is a
// single self-contained HTML page that talks to the gateway over /ws/chat.
package assets

import (
	_ "embed"
	"net/http"
)

//go:embed chat.html
var chatPage []byte

// ChatPage serves the chat widget.
func ChatPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(chatPage)
}

// ABOUTME: Serves embedded help documentation rendered from markdown
// ABOUTME: GET /help lists topics; GET /help?topic=x renders a single page

package gateway

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
)

//go:embed docs/help/*.md
var helpDocsFS embed.FS

type helpTopic struct {
	Slug   string
	Title  string
	Active bool
}

var helpPageTmpl = template.Must(template.New("help").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Typo Gateway Help</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
nav { margin-bottom: 2rem; }
nav a { margin-right: 1rem; color: #2563eb; text-decoration: none; }
nav a.active { font-weight: 600; text-decoration: underline; }
pre { background: #f4f4f5; padding: 1rem; border-radius: 6px; overflow-x: auto; }
code { background: #f4f4f5; padding: 0.1rem 0.3rem; border-radius: 4px; }
</style>
</head>
<body>
<nav>
{{range .Topics}}<a href="/help?topic={{.Slug}}"{{if .Active}} class="active"{{end}}>{{.Title}}</a>{{end}}
</nav>
<main>{{.Content}}</main>
</body>
</html>
`))

// handleHelp renders a help topic from the embedded docs.
func (g *Gateway) handleHelp(w http.ResponseWriter, r *http.Request) {
	selectedTopic := r.URL.Query().Get("topic")
	if selectedTopic == "" {
		selectedTopic = "getting-started"
	}

	entries, err := helpDocsFS.ReadDir("docs/help")
	if err != nil {
		g.logger.Error("failed to read help docs", "error", err)
		http.Error(w, "Failed to load help", http.StatusInternalServerError)
		return
	}

	var topics []helpTopic
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name(), ".md")
		topics = append(topics, helpTopic{
			Slug:   slug,
			Title:  formatHelpTitle(slug),
			Active: slug == selectedTopic,
		})
	}

	topicOrder := map[string]int{
		"getting-started": 1,
		"configuration":   2,
		"api":             3,
		"organizations":   4,
		"troubleshooting": 5,
	}
	sort.Slice(topics, func(i, j int) bool {
		orderI, okI := topicOrder[topics[i].Slug]
		orderJ, okJ := topicOrder[topics[j].Slug]
		if !okI {
			orderI = 100
		}
		if !okJ {
			orderJ = 100
		}
		if orderI != orderJ {
			return orderI < orderJ
		}
		return topics[i].Slug < topics[j].Slug
	})

	mdPath := filepath.Join("docs/help", selectedTopic+".md")
	mdContent, err := helpDocsFS.ReadFile(mdPath)
	if err != nil {
		g.logger.Error("failed to read help topic", "topic", selectedTopic, "error", err)
		mdContent = []byte("# Not Found\n\nThis help topic could not be found.")
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(mdContent, &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		htmlBuf.WriteString("<p>Failed to render help content.</p>")
	}

	data := struct {
		Topics  []helpTopic
		Content template.HTML
	}{
		Topics:  topics,
		Content: template.HTML(htmlBuf.String()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := helpPageTmpl.Execute(w, data); err != nil {
		g.logger.Error("failed to render help page", "error", err)
	}
}

// formatHelpTitle converts a slug to a display title
func formatHelpTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		words[i] = strings.Title(word)
	}
	return strings.Join(words, " ")
}

package chat

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/store"
)

// goldmark drops raw HTML unless WithUnsafe is set, so message text cannot inject markup.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{range .Entries}}<section class="message {{.Class}}">
<h2>{{.Author}} <time datetime="{{.Time}}">{{.Time}}</time></h2>
{{.Body}}</section>
{{end}}</body>
</html>
`))

type transcriptEntry struct {
	Class  string
	Author string
	Time   string
	Body   template.HTML
}

// Transcript renders the chat as a standalone HTML document for export.
func (s *Service) Transcript(ctx context.Context, userID, chatID int32) ([]byte, error) {
	chat, err := s.getOwnedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, &store.FindMessage{ChatID: &chatID})
	if err != nil {
		return nil, errs.PersistenceFailure("failed to list messages", err)
	}
	return RenderTranscript(chat.Title, msgs)
}

// RenderTranscript renders messages in order. Content is treated as markdown.
func RenderTranscript(title string, msgs []*store.Message) ([]byte, error) {
	entries := make([]transcriptEntry, 0, len(msgs))
	for _, m := range msgs {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			return nil, err
		}
		entry := transcriptEntry{
			Class:  "assistant",
			Author: "AI",
			Time:   time.Unix(m.CreatedTs, 0).UTC().Format(time.RFC3339),
			Body:   template.HTML(body.String()),
		}
		if m.IsUser() {
			entry.Class, entry.Author = "user", "User"
		}
		if m.Degraded {
			entry.Class += " degraded"
		}
		entries = append(entries, entry)
	}

	var out bytes.Buffer
	err := transcriptTemplate.Execute(&out, struct {
		Title   string
		Entries []transcriptEntry
	}{Title: title, Entries: entries})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

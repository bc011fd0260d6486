// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FormatHTML is the only format value Matrix defines for formatted_body.
const FormatHTML = "org.matrix.custom.html"

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdownConverter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// NewMarkdownMessage creates an m.notice whose body is the Markdown
// source and whose formatted_body is the rendered HTML. Clients that do
// not render HTML show the source. Falls back to a plain notice if
// rendering fails.
func NewMarkdownMessage(markdown string) MessageContent {
	content := MessageContent{MsgType: "m.notice", Body: markdown}
	var rendered bytes.Buffer
	if err := markdownConverter().Convert([]byte(markdown), &rendered); err != nil {
		return content
	}
	content.Format = FormatHTML
	content.FormattedBody = rendered.String()
	return content
}

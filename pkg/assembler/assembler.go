// Package assembler builds what is sent upstream for one chat turn: the
// system prompt, the user body with attached file text, the bounded history
// and, for a conversation's first message, the enriched prompt kept for
// audit. It performs no I/O.
package assembler

import (
	"strings"

	"Copilot/models"
	"Copilot/pkg/extract"
	"Copilot/pkg/prompts"
)

const DefaultHistoryLimit = 3

type Assembler struct {
	historyLimit int
}

func New(historyLimit int) *Assembler {
	if historyLimit < 1 {
		historyLimit = DefaultHistoryLimit
	}
	return &Assembler{historyLimit: historyLimit}
}

type Input struct {
	ConversationID uint
	Message        string
	Domain         string
	Files          []extract.File
	// History holds the stored messages, oldest first. An empty history
	// marks the conversation's first message.
	History []models.ChatMessage
}

type Context struct {
	ConversationID uint
	Domain         prompts.Domain
	SystemPrompt   string
	Body           string
	// EnrichedPrompt is set only for the first message.
	EnrichedPrompt *string
	History        []models.ChatMessage
	FirstMessage   bool
}

func (a *Assembler) Assemble(in Input) Context {
	domain := prompts.ParseDomain(in.Domain)
	system := prompts.SystemPrompt(domain)
	body := Body(in.Message, in.Files)

	ctx := Context{
		ConversationID: in.ConversationID,
		Domain:         domain,
		SystemPrompt:   system,
		Body:           body,
		History:        a.bound(in.History),
		FirstMessage:   len(in.History) == 0,
	}
	if ctx.FirstMessage {
		ep := Enrich(system, body)
		ctx.EnrichedPrompt = &ep
	}
	return ctx
}

func (a *Assembler) HistoryLimit() int { return a.historyLimit }

// bound returns a copy of the last historyLimit entries.
func (a *Assembler) bound(h []models.ChatMessage) []models.ChatMessage {
	if len(h) > a.historyLimit {
		h = h[len(h)-a.historyLimit:]
	}
	out := make([]models.ChatMessage, len(h))
	copy(out, h)
	return out
}

// Body appends each file's text to message under a header naming the file.
func Body(message string, files []extract.File) string {
	if len(files) == 0 {
		return message
	}
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		blocks = append(blocks, "=== File content: "+f.Name+" ===\n"+f.Text)
	}
	return message + "\n\n" + strings.Join(blocks, "\n\n")
}

func Enrich(systemPrompt, body string) string {
	return systemPrompt + "\n\n" + body
}

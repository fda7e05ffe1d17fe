package ports

// MarkdownRenderer converts markdown, including tables and fenced code, to HTML
type MarkdownRenderer interface {
	Render(markdown string) string
}

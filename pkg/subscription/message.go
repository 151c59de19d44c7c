package subscription

import "html"

// FormatUserMessage renders a management-command response, HTML-escaping
// the user-supplied query text so it can be safely embedded in a chat
// platform message that supports a small HTML subset.
func FormatUserMessage(template string, queryStr string) string {
	escaped := html.EscapeString(queryStr)
	out := make([]byte, 0, len(template)+len(escaped))
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) && template[i+1] == 'q' {
			out = append(out, escaped...)
			i++
			continue
		}
		out = append(out, template[i])
	}
	return string(out)
}

package conversation

import "strings"

// Serialize renders turns as role-tagged blocks ("[USER]\n<content>")
// joined by newlines. The output depends only on roles and contents.
func Serialize(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('[')
		sb.WriteString(strings.ToUpper(string(t.Role)))
		sb.WriteString("]\n")
		sb.WriteString(t.Content)
	}
	return sb.String()
}

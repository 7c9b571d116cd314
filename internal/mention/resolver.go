package mention

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/telecarehq/chatsync/internal/models"
)

// Structured mentions travel inside message content as "{id}{Name}".
// The grammar is strict: digits only in the first group, no braces in
// the second.
var tokenPattern = regexp.MustCompile(`\{(\d+)\}\{([^{}]+)\}`)

type Token struct {
	UserID int64
	Name   string
}

func Structure(user models.DirectoryUser) string {
	return fmt.Sprintf("{%d}{%s}", user.ID, user.FullName())
}

// Display renders structured tokens back as "@Name" for human editing.
func Display(content string) string {
	return tokenPattern.ReplaceAllString(content, "@$2")
}

// Tokens extracts every resolved mention from content.
func Tokens(content string) []Token {
	matches := tokenPattern.FindAllStringSubmatch(content, -1)
	tokens := make([]Token, 0, len(matches))
	for _, match := range matches {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, Token{UserID: id, Name: match[2]})
	}
	return tokens
}

// Resolve replaces the trailing "@query" span with the structured form
// of user. Text before and after the span is preserved byte-for-byte.
func Resolve(content, query string, user models.DirectoryUser) string {
	needle := "@" + query
	idx := strings.LastIndex(content, needle)
	if idx < 0 {
		return content
	}
	return content[:idx] + Structure(user) + content[idx+len(needle):]
}

// Restructure rewraps "@Full Name" spans that match a known directory
// entry, case-insensitively. Structured tokens contain no "@", so
// running Restructure over already-resolved content changes nothing.
// Longer names are applied first and a match must end at a word
// boundary, so "@John Smith" never claims the front of "@John Smithson".
func Restructure(content string, known []models.DirectoryUser) string {
	users := append([]models.DirectoryUser(nil), known...)
	sort.SliceStable(users, func(i, j int) bool {
		return len(users[i].FullName()) > len(users[j].FullName())
	})

	for _, user := range users {
		name := user.FullName()
		if name == "" {
			continue
		}
		content = replaceMentionSpans(content, name, Structure(user))
	}
	return content
}

func replaceMentionSpans(content, name, replacement string) string {
	needle := "@" + name
	var out strings.Builder
	for {
		idx := indexFold(content, needle)
		if idx < 0 {
			out.WriteString(content)
			return out.String()
		}
		end := idx + len(needle)
		if end < len(content) && isNameByte(content[end]) {
			// Name continues past the candidate; keep the "@" literal
			// and rescan after it.
			out.WriteString(content[:idx+1])
			content = content[idx+1:]
			continue
		}
		out.WriteString(content[:idx])
		out.WriteString(replacement)
		content = content[end:]
	}
}

func indexFold(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if strings.EqualFold(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// QueryCandidate extracts the in-progress "@query" fragment when the
// directory should be searched. It returns false when the role's threads
// do not support mentions, there is no trailing mention span, the span
// no longer looks like a single name being typed, or the span is already
// a complete directory name (which suppresses the dropdown entirely).
func QueryCandidate(content string, role models.Role, directory *Directory) (string, bool) {
	if !role.MentionEligible() {
		return "", false
	}

	idx := strings.LastIndexByte(content, '@')
	if idx < 0 {
		return "", false
	}

	candidate := content[idx+1:]
	if strings.ContainsAny(candidate, "\n\t") {
		return "", false
	}
	// A first and last name holds at most one space; more means the
	// author has moved on past the mention.
	if strings.Count(candidate, " ") > 1 {
		return "", false
	}
	if directory != nil && directory.IsComplete(candidate) {
		return "", false
	}
	return candidate, true
}

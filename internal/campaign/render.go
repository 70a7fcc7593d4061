package campaign

import (
	"regexp"
	"strings"

	"github.com/imobflow/imobflow/internal/models"
)

// DefaultContactName replaces {{contact.name}} when the contact has no name.
const DefaultContactName = "Cliente"

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render fills a message template for one contact. Named variables are
// substituted first, then the contact placeholders. Unknown variables are
// left in place; unknown contact fields render empty.
func Render(text string, contact *models.Contact, vars map[string]string) string {
	text = placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if strings.HasPrefix(key, "contact.") {
			return m
		}
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})

	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		field, ok := strings.CutPrefix(key, "contact.")
		if !ok {
			return m
		}
		return contactField(contact, field)
	})
}

func contactField(c *models.Contact, field string) string {
	name := ""
	if c != nil {
		name = strings.TrimSpace(c.Name)
	}

	switch field {
	case "name":
		if name == "" {
			return DefaultContactName
		}
		return name
	case "firstName":
		if name == "" {
			return DefaultContactName
		}
		first, _, _ := strings.Cut(name, " ")
		return first
	case "email":
		if c == nil {
			return ""
		}
		return c.Email
	case "phone":
		if c == nil {
			return ""
		}
		return c.Phone
	default:
		return ""
	}
}

package infer

import (
	"fmt"
	"strings"
)

// extractionPrompt builds the system prompt for the given extraction profile.
func extractionPrompt(req ExtractRequest) string {
	var b strings.Builder

	b.WriteString("You are an expert at extracting appointment booking information.\n")
	b.WriteString("Extract the following from the user message and return as JSON:\n\n")

	switch req.Profile {
	case ProfileFull:
		fmt.Fprintf(&b, `{
  "service_type": "the service the user is asking for, or null",
  "preferred_date": "YYYY-MM-DD format or null (today is %s)",
  "preferred_time": "morning/afternoon/evening/specific time or null",
  "name": "user's name or null",
  "contact": "phone or email or null"
}

`, req.Today)
		b.WriteString("For service_type, infer from the user request which service they are trying to get.\n")
		b.WriteString("Here is the complete list of services we provide:\n")
		fmt.Fprintf(&b, "%s\n", strings.Join(req.Services, ", "))
		b.WriteString("If the message carries no service information yet, return null.\n")
		b.WriteString("If the user asks for a service not on the list, return the name as you infer it; the caller will tell them it is not offered.\n\n")
	default:
		fmt.Fprintf(&b, `{
  "service_type": null,
  "preferred_date": "YYYY-MM-DD format or null (today is %s)",
  "preferred_time": "morning/afternoon/evening/specific time or null",
  "name": "user's name or null",
  "contact": "phone or email or null"
}

`, req.Today)
	}

	b.WriteString("Be precise with dates. If the user says \"tomorrow\", calculate the actual date.\n")
	b.WriteString("If the user says \"this weekend\", extract null since it is not specific.\n\n")
	b.WriteString("Return ONLY valid JSON, no additional text.")
	return b.String()
}

// extractJSON pulls the first balanced JSON object out of model output,
// tolerating code fences and surrounding prose.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

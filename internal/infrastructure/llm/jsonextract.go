package llm

// extractJSONObjects scans free text for balanced top-level JSON objects and
// returns each candidate. Model replies are often wrapped in prose or code
// fences, sometimes with braces inside the surrounding text, so the scan
// tracks brace depth and string/escape state instead of splitting on
// delimiters that may repeat.
//
// Iterating bytes is safe for the ASCII delimiters involved: UTF-8 never
// embeds ASCII bytes inside a multi-byte sequence.
func extractJSONObjects(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escaped    bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escaped {
			escaped = false
			continue
		}

		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

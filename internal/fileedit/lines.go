package fileedit

import "strings"

// splitLines breaks content into logical lines, detecting whichever line
// separator appears first (CRLF, then LF, then lone CR). The split
// introduces one phantom trailing "" element whenever content ends with a
// separator; that single artifact is trimmed, but a genuine blank line
// before it (a real double trailing newline) is preserved.
func splitLines(content string) (lines []string, sep string, hadTrailingSep bool) {
	sep = detectSeparator(content)
	if content == "" {
		return []string{}, sep, false
	}

	lines = strings.Split(content, sep)
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
		hadTrailingSep = true
	}
	return lines, sep, hadTrailingSep
}

// detectSeparator finds the first line separator in content, defaulting to
// "\n" when content contains none (e.g. a single-line file).
func detectSeparator(content string) string {
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\r':
			if i+1 < len(content) && content[i+1] == '\n' {
				return "\r\n"
			}
			return "\r"
		case '\n':
			return "\n"
		}
	}
	return "\n"
}

// joinLines is the inverse of splitLines: it reassembles lines with sep,
// re-appending the trailing separator iff hadTrailingSep was true.
func joinLines(lines []string, sep string, hadTrailingSep bool) string {
	out := strings.Join(lines, sep)
	if hadTrailingSep {
		out += sep
	}
	return out
}

// leadingWhitespace returns the leading run of spaces/tabs on a line.
func leadingWhitespace(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}

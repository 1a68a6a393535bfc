package claudestream

import "strings"

// LineAssembler buffers text chunks of arbitrary boundary into complete
// newline-terminated lines. One assembler serves one stream.
type LineAssembler struct {
	pending strings.Builder
}

// NewLineAssembler creates an empty assembler.
func NewLineAssembler() *LineAssembler {
	return &LineAssembler{}
}

// Feed appends a chunk and returns every complete line it closed off, in
// order, without their trailing newlines. Partial data stays buffered until
// a later chunk or Flush completes it.
func (a *LineAssembler) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}

	a.pending.WriteString(chunk)
	buffered := a.pending.String()

	last := strings.LastIndexByte(buffered, '\n')
	if last < 0 {
		return nil
	}

	lines := strings.Split(buffered[:last], "\n")
	a.pending.Reset()
	a.pending.WriteString(buffered[last+1:])
	return lines
}

// Flush returns the trailing partial line, if any non-blank data remains
// buffered. Call it once when the source stream ends.
func (a *LineAssembler) Flush() (string, bool) {
	rest := a.pending.String()
	a.pending.Reset()
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

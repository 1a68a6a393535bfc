package claudestream

import (
	"reflect"
	"testing"
)

func TestLineAssembler(t *testing.T) {
	t.Run("SingleCompleteLine", func(t *testing.T) {
		a := NewLineAssembler()
		got := a.Feed("hello\n")
		if !reflect.DeepEqual(got, []string{"hello"}) {
			t.Errorf("expected [hello], got %v", got)
		}
	})

	t.Run("PartialThenCompletion", func(t *testing.T) {
		a := NewLineAssembler()
		if got := a.Feed("hel"); got != nil {
			t.Errorf("expected no lines for partial chunk, got %v", got)
		}
		got := a.Feed("lo\nwor")
		if !reflect.DeepEqual(got, []string{"hello"}) {
			t.Errorf("expected [hello], got %v", got)
		}
		got = a.Feed("ld\n")
		if !reflect.DeepEqual(got, []string{"world"}) {
			t.Errorf("expected [world], got %v", got)
		}
	})

	t.Run("MultipleLinesOneChunk", func(t *testing.T) {
		a := NewLineAssembler()
		got := a.Feed("one\ntwo\nthree\n")
		if !reflect.DeepEqual(got, []string{"one", "two", "three"}) {
			t.Errorf("expected [one two three], got %v", got)
		}
	})

	t.Run("EmptyLinesPreserved", func(t *testing.T) {
		a := NewLineAssembler()
		got := a.Feed("one\n\ntwo\n")
		if !reflect.DeepEqual(got, []string{"one", "", "two"}) {
			t.Errorf("expected empty line preserved, got %v", got)
		}
	})

	t.Run("EmptyChunk", func(t *testing.T) {
		a := NewLineAssembler()
		if got := a.Feed(""); got != nil {
			t.Errorf("expected nil for empty chunk, got %v", got)
		}
	})

	t.Run("FlushReturnsRemainder", func(t *testing.T) {
		a := NewLineAssembler()
		a.Feed("complete\npartial")
		rest, ok := a.Flush()
		if !ok || rest != "partial" {
			t.Errorf("expected partial remainder, got %q ok=%v", rest, ok)
		}
	})

	t.Run("FlushBlankRemainder", func(t *testing.T) {
		a := NewLineAssembler()
		a.Feed("complete\n   ")
		if rest, ok := a.Flush(); ok {
			t.Errorf("expected no remainder for whitespace, got %q", rest)
		}
	})

	t.Run("FlushEmpty", func(t *testing.T) {
		a := NewLineAssembler()
		if rest, ok := a.Flush(); ok {
			t.Errorf("expected nothing to flush, got %q", rest)
		}
	})

	t.Run("FlushResetsBuffer", func(t *testing.T) {
		a := NewLineAssembler()
		a.Feed("partial")
		a.Flush()
		if rest, ok := a.Flush(); ok {
			t.Errorf("second flush should be empty, got %q", rest)
		}
	})

	t.Run("ByteAtATime", func(t *testing.T) {
		a := NewLineAssembler()
		var lines []string
		for _, ch := range "ab\ncd\n" {
			lines = append(lines, a.Feed(string(ch))...)
		}
		if !reflect.DeepEqual(lines, []string{"ab", "cd"}) {
			t.Errorf("expected [ab cd], got %v", lines)
		}
	})
}

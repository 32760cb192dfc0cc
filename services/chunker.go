package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"drive-qdrant-uploader/models"
)

// defaultSeparators orders split boundaries from most to least semantic:
// paragraph, line, word, then a rune-level hard cut as last resort.
var defaultSeparators = []string{"\n\n", "\n", " "}

// piece is a chunk candidate paired with the byte offset of its first
// character in the source document. Offsets are assigned when the text is
// split and carried through merging, so attribution never has to rediscover
// a chunk's position; repeated content cannot confuse it.
type piece struct {
	text  string
	start int
}

// Chunker splits document text into bounded chunks and records the 1-based
// line range each chunk was cut from. Splitting is deterministic: the same
// input always yields the same chunks and line ranges, which downstream
// citation depends on.
//
// Empty and whitespace-only inputs yield zero chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker validates 0 <= overlap < size and returns a ready chunker.
// Sizes are measured in runes, not bytes.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got %d/%d", chunkOverlap, chunkSize)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// Split chunks text and attributes each chunk to its source lines by
// counting newlines up to the chunk's recorded start offset.
func (c *Chunker) Split(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := c.splitText(text, 0, c.separators)
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		fromLine := 1 + strings.Count(text[:p.start], "\n")
		chunks = append(chunks, models.Chunk{
			Text:     p.text,
			FromLine: fromLine,
			ToLine:   fromLine + strings.Count(p.text, "\n"),
		})
	}
	return chunks
}

// splitText recursively splits on the first separator present in text and
// merges the resulting pieces back up to chunkSize. base is the byte offset
// of text within the whole document; every emitted piece's start is
// absolute.
func (c *Chunker) splitText(text string, base int, separators []string) []piece {
	if len(separators) == 0 {
		return c.hardCut(text, base)
	}

	sep := ""
	rest := separators
	for i, s := range separators {
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
		rest = separators[i+1:]
	}
	if sep == "" {
		return c.hardCut(text, base)
	}

	var splits []piece
	off := 0
	for _, s := range strings.Split(text, sep) {
		splits = append(splits, piece{text: s, start: base + off})
		off += len(s) + len(sep)
	}

	var final []piece
	var good []piece
	for _, p := range splits {
		if utf8.RuneCountInString(p.text) < c.chunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.mergeSplits(good, sep)...)
			good = nil
		}
		final = append(final, c.splitText(p.text, p.start, rest)...)
	}
	if len(good) > 0 {
		final = append(final, c.mergeSplits(good, sep)...)
	}
	return final
}

// mergeSplits joins adjacent small pieces until adding one more would exceed
// chunkSize, then starts the next chunk from a tail of the current one so
// consecutive chunks share up to chunkOverlap runes of context. The pieces
// are consecutive at one separator level, so the join reconstructs an exact
// substring starting at the first retained piece's offset.
func (c *Chunker) mergeSplits(splits []piece, sep string) []piece {
	sepLen := utf8.RuneCountInString(sep)

	var docs []piece
	var current []piece
	total := 0

	joinLen := func(l int) int {
		if len(current) > 0 {
			return l + sepLen
		}
		return l
	}

	emit := func() {
		parts := make([]string, len(current))
		for i, p := range current {
			parts[i] = p.text
		}
		if doc := trim(strings.Join(parts, sep), current[0].start); doc != nil {
			docs = append(docs, *doc)
		}
	}

	for _, p := range splits {
		l := utf8.RuneCountInString(p.text)
		if total+joinLen(l) > c.chunkSize && len(current) > 0 {
			emit()
			// Drop pieces from the front until the retained tail fits inside
			// the overlap budget and leaves room for the incoming piece.
			for len(current) > 0 &&
				(total > c.chunkOverlap || (total+joinLen(l) > c.chunkSize && total > 0)) {
				removed := utf8.RuneCountInString(current[0].text)
				if len(current) > 1 {
					removed += sepLen
				}
				total -= removed
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		total += l
		current = append(current, p)
	}
	if len(current) > 0 {
		emit()
	}
	return docs
}

// hardCut slices text into chunkSize rune windows, stepping by
// size-overlap so neighbors overlap like merged chunks do. Used when no
// separator can break an oversized token.
func (c *Chunker) hardCut(text string, base int) []piece {
	if utf8.RuneCountInString(text) <= c.chunkSize {
		if p := trim(text, base); p != nil {
			return []piece{*p}
		}
		return nil
	}

	// Byte offset of every rune, plus a terminator for the final window.
	offs := make([]int, 0, len(text)+1)
	for i := range text {
		offs = append(offs, i)
	}
	offs = append(offs, len(text))
	runes := len(offs) - 1

	step := c.chunkSize - c.chunkOverlap
	var out []piece
	for start := 0; start < runes; start += step {
		end := start + c.chunkSize
		if end > runes {
			end = runes
		}
		if p := trim(text[offs[start]:offs[end]], base+offs[start]); p != nil {
			out = append(out, *p)
		}
		if end == runes {
			break
		}
	}
	return out
}

// trim strips surrounding whitespace and advances the start offset past
// whatever was cut from the front. Nil means nothing was left.
func trim(text string, start int) *piece {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	return &piece{text: trimmed, start: start + lead}
}

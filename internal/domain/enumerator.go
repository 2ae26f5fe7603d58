package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"zipmirror.dev/pkg/zipmirror/internal/adapter"
)

// DefaultAlphabet is lowercase letters and digits without l, o and 0.
const DefaultAlphabet = "abcdefghijkmnpqrstuvwxyz123456789"

// ErrInvalidAlphabet is returned for empty alphabets or alphabets with
// repeated or whitespace symbols.
var ErrInvalidAlphabet = errors.New("invalid alphabet")

// Enumerator generates destination names as a bijective base-N numeral
// system over its alphabet: "" -> a, a -> b, 9 -> aa, a9 -> ba.
type Enumerator struct {
	symbols []rune
	index   map[rune]int
}

// NewEnumerator validates alphabet and builds an Enumerator over it.
func NewEnumerator(alphabet string) (*Enumerator, error) {
	symbols := []rune(alphabet)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAlphabet)
	}

	index := make(map[rune]int, len(symbols))

	for i, r := range symbols {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return nil, fmt.Errorf("%w: symbol %q at position %d", ErrInvalidAlphabet, r, i)
		}

		if _, dup := index[r]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %q", ErrInvalidAlphabet, r)
		}

		index[r] = i
	}

	return &Enumerator{symbols: symbols, index: index}, nil
}

// MustEnumerator is NewEnumerator for alphabets known to be valid.
func MustEnumerator(alphabet string) *Enumerator {
	e, err := NewEnumerator(alphabet)
	if err != nil {
		panic(err)
	}

	return e
}

// ord returns the position of r, with symbols outside the alphabet ranked
// past the last one.
func (e *Enumerator) ord(r rune) int {
	if i, ok := e.index[r]; ok {
		return i
	}

	return len(e.symbols)
}

// Next returns the name following last.
func (e *Enumerator) Next(last string) string {
	digits := []rune(last)

	for i := len(digits) - 1; i >= 0; i-- {
		next := e.ord(digits[i]) + 1
		if next < len(e.symbols) {
			digits[i] = e.symbols[next]
			return string(digits)
		}

		digits[i] = e.symbols[0]
	}

	return string(e.symbols[0]) + string(digits)
}

// Compare orders names the way Next produces them: shorter names first, then
// position by position.
func (e *Enumerator) Compare(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		if len(ra) < len(rb) {
			return -1
		}

		return 1
	}

	for i := range ra {
		oa, ob := e.ord(ra[i]), e.ord(rb[i])
		if oa == ob && ra[i] != rb[i] {
			// both outside the alphabet
			oa, ob = int(ra[i]), int(rb[i])
		}

		if oa != ob {
			if oa < ob {
				return -1
			}

			return 1
		}
	}

	return 0
}

// IsEnumerated reports whether name consists only of alphabet symbols.
func (e *Enumerator) IsEnumerated(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if _, ok := e.index[r]; !ok {
			return false
		}
	}

	return true
}

// Highest returns the greatest enumerated name among names once prefix and
// suffix are removed, or "" if there is none.
func (e *Enumerator) Highest(names []string, prefix, suffix string) string {
	best := ""

	for _, n := range names {
		if !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, suffix) || len(n) < len(prefix)+len(suffix) {
			continue
		}

		core := n[len(prefix) : len(n)-len(suffix)]
		if e.IsEnumerated(core) && e.Compare(core, best) > 0 {
			best = core
		}
	}

	return best
}

// NextName is a reserved destination name.
type NextName struct {
	// Name is the bare enumerated value, used as the directory cursor.
	Name string
	// Filename is prefix + Name + suffix.
	Filename string
	// FullPath is Filename joined to the directory.
	FullPath string
}

// NextAvailable advances from last until prefix+name+suffix is not present in
// dirPath, is not a reserved index name and is not claimed according to
// inUse. inUse may be nil.
func (e *Enumerator) NextAvailable(
	fs adapter.FileSystemAdapter,
	dirPath, last, prefix, suffix string,
	inUse func(name string) bool,
) (NextName, error) {
	name := last

	for {
		name = e.Next(name)
		filename := prefix + name + suffix
		fullPath := filepath.Join(dirPath, filename)

		if IsIndexName(filename) {
			continue
		}

		if inUse != nil && inUse(name) {
			slog.Warn("Skipping destination name already claimed", "dir", dirPath, "name", filename)
			continue
		}

		exists, err := fs.Exists(fullPath)
		if err != nil {
			return NextName{}, fmt.Errorf("failed to check %s: %w", fullPath, err)
		}

		if exists {
			slog.Warn("Skipping destination name already on disk", "dir", dirPath, "name", filename)
			continue
		}

		return NextName{Name: name, Filename: filename, FullPath: fullPath}, nil
	}
}

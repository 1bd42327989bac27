package lockcell

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Token identifies a lock holder. Bot invocations use their run id.
type Token int64

// String renders the token in the decimal form stored in the cell.
func (t Token) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Cell is a single remote value holding the current lock owner.
type Cell interface {
	// Read returns the current holder. held is false when the cell is empty
	// or does not contain a decimal token.
	Read(ctx context.Context) (holder Token, held bool, err error)

	// TryClaim writes token as the new holder without checking the previous
	// value. Success does not imply ownership.
	TryClaim(ctx context.Context, token Token) error
}

// Releaser clears a cell. Only the external unlock action uses it.
type Releaser interface {
	Release(ctx context.Context) error
}

// ReleasableCell is a cell that can also be cleared.
type ReleasableCell interface {
	Cell
	Releaser
}

// ParseHolder interprets a stored cell value.
// Empty or non-numeric values mean the lock is free.
func ParseHolder(raw string) (Token, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return Token(n), true
}

// ParseToken parses a run id supplied by the caller (for example on the command line).
func ParseToken(raw string) (Token, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lock token %q: %w", raw, err)
	}
	return Token(n), nil
}

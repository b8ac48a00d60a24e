package token

// Cursor is a peekable, rewindable view over a token slice.
//
// Speculative parsing works with nested checkpoints:
//
//	c.Record()
//	if node, err := tryRange(c); err == nil {
//	    c.Discard() // commit
//	    return node
//	}
//	c.Rewind() // replay everything consumed since Record
//
// Once the input is exhausted, Peek and Next keep returning the EOF sentinel.
type Cursor struct {
	tokens      []Token
	pos         int
	checkpoints []int
	last        int // position before the most recent Next, -1 if none
	eof         Token
}

// NewCursor creates a cursor. The sentinel EOF token is positioned just past
// the final token.
func NewCursor(tokens []Token) *Cursor {
	eof := Token{Kind: EOF, Line: 1, Column: 1}
	if n := len(tokens); n > 0 {
		lastTok := tokens[n-1]
		eof.Offset = lastTok.End()
		eof.Line = lastTok.Line
		eof.Column = lastTok.Column + (lastTok.End() - lastTok.Offset)
	}
	return &Cursor{tokens: tokens, last: -1, eof: eof}
}

// Peek returns the next token without consuming it.
func (c *Cursor) Peek() Token {
	if c.pos >= len(c.tokens) {
		return c.eof
	}
	return c.tokens[c.pos]
}

// PeekAt returns the token n positions ahead (0 == Peek).
func (c *Cursor) PeekAt(n int) Token {
	if c.pos+n >= len(c.tokens) || c.pos+n < 0 {
		return c.eof
	}
	return c.tokens[c.pos+n]
}

// Next consumes and returns the next token.
func (c *Cursor) Next() Token {
	c.last = c.pos
	if c.pos >= len(c.tokens) {
		return c.eof
	}
	tok := c.tokens[c.pos]
	c.pos++
	return tok
}

// PutBack undoes exactly the last Next. Calling it twice in a row, or
// without a preceding Next, panics.
func (c *Cursor) PutBack() {
	if c.last < 0 {
		panic("token.Cursor: PutBack without a preceding Next")
	}
	c.pos = c.last
	c.last = -1
}

// Record pushes a checkpoint at the current position.
func (c *Cursor) Record() {
	c.checkpoints = append(c.checkpoints, c.pos)
}

// Rewind pops the innermost checkpoint and restores the cursor to it, so the
// tokens consumed since then are replayed.
func (c *Cursor) Rewind() {
	n := len(c.checkpoints)
	if n == 0 {
		panic("token.Cursor: Rewind without Record")
	}
	c.pos = c.checkpoints[n-1]
	c.checkpoints = c.checkpoints[:n-1]
	c.last = -1
}

// Discard pops the innermost checkpoint, committing everything consumed
// since the matching Record.
func (c *Cursor) Discard() {
	n := len(c.checkpoints)
	if n == 0 {
		panic("token.Cursor: Discard without Record")
	}
	c.checkpoints = c.checkpoints[:n-1]
}

// Depth returns the number of open checkpoints.
func (c *Cursor) Depth() int {
	return len(c.checkpoints)
}

// AtEOF reports whether all tokens have been consumed.
func (c *Cursor) AtEOF() bool {
	return c.pos >= len(c.tokens)
}

package compiler

import (
	"testing"
)

func TestLexerOperators(t *testing.T) {
	input := `( ) { } , ; + - * / % ^ = += -= *= /= ++ -- == != < <= > >= && || !`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenSemicolon, ";"},
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenPercent, "%"},
		{TokenCaret, "^"},
		{TokenAssign, "="},
		{TokenPlusAssign, "+="},
		{TokenMinusAssign, "-="},
		{TokenStarAssign, "*="},
		{TokenSlashAssign, "/="},
		{TokenIncrement, "++"},
		{TokenDecrement, "--"},
		{TokenEQ, "=="},
		{TokenNE, "!="},
		{TokenLT, "<"},
		{TokenLE, "<="},
		{TokenGT, ">"},
		{TokenGE, ">="},
		{TokenAnd, "&&"},
		{TokenOr, "||"},
		{TokenNot, "!"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []string{"42", "0", "3.14", ".5", "1e-3", "2.5E+4", "6e10"}

	for _, input := range tests {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", input, tok.Type)
		}
		if tok.Literal != input {
			t.Errorf("Lexer(%q): literal = %q", input, tok.Literal)
		}
	}
}

func TestLexerMalformedExponent(t *testing.T) {
	tokens := Tokenize("1e+x")
	last := tokens[len(tokens)-1]
	if last.Type != TokenError {
		t.Fatalf("last token = %v, want ERROR", last)
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	input := `init if else while foo _bar out_1 NaN`
	expected := []TokenType{
		TokenInit, TokenIf, TokenElse, TokenWhile,
		TokenIdentifier, TokenIdentifier, TokenIdentifier, TokenIdentifier,
		TokenEOF,
	}

	tokens := Tokenize(input)
	if len(tokens) != len(expected) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(expected), tokens)
	}
	for i, typ := range expected {
		if tokens[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i], typ)
		}
	}
}

func TestLexerComments(t *testing.T) {
	tokens := Tokenize("a // line comment\n b /* block \n comment */ c")
	if len(tokens) != 4 {
		t.Fatalf("got %d tokens, want 4: %v", len(tokens), tokens)
	}
	for i, name := range []string{"a", "b", "c"} {
		if tokens[i].Type != TokenIdentifier || tokens[i].Literal != name {
			t.Errorf("token[%d] = %v, want IDENTIFIER(%q)", i, tokens[i], name)
		}
	}
	c := tokens[2]
	if c.Pos.Line != 3 || c.Pos.Column != 13 {
		t.Errorf("c at %d:%d, want 3:13", c.Pos.Line, c.Pos.Column)
	}
}

func TestLexerUnterminatedComment(t *testing.T) {
	tokens := Tokenize("a /* never closed")
	last := tokens[len(tokens)-1]
	if last.Type != TokenError || last.Literal != "unterminated comment" {
		t.Fatalf("last token = %v, want unterminated comment error", last)
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	for _, input := range []string{"@", "&", "|", "#"} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q): type = %v, want ERROR", input, tok.Type)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("a\n  bb = 1;")
	a := l.NextToken()
	b := l.NextToken()
	if a.Pos.Line != 1 || a.Pos.Column != 1 {
		t.Errorf("a at %d:%d, want 1:1", a.Pos.Line, a.Pos.Column)
	}
	if b.Pos.Line != 2 || b.Pos.Column != 3 || b.Pos.Offset != 4 {
		t.Errorf("bb at %d:%d offset %d, want 2:3 offset 4", b.Pos.Line, b.Pos.Column, b.Pos.Offset)
	}
}

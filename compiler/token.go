package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the raster-algebra lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14, .5, 1e-3
	TokenIdentifier // foo, out_1

	// Keywords
	TokenInit  // init
	TokenIf    // if
	TokenElse  // else
	TokenWhile // while

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenCaret   // ^

	// Assignment
	TokenAssign      // =
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenStarAssign  // *=
	TokenSlashAssign // /=
	TokenIncrement   // ++
	TokenDecrement   // --

	// Comparison and logic
	TokenEQ  // ==
	TokenNE  // !=
	TokenLT  // <
	TokenLE  // <=
	TokenGT  // >
	TokenGE  // >=
	TokenAnd // &&
	TokenOr  // ||
	TokenNot // !

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNumber:      "NUMBER",
	TokenIdentifier:  "IDENTIFIER",
	TokenInit:        "init",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenCaret:       "^",
	TokenAssign:      "=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenSlashAssign: "/=",
	TokenIncrement:   "++",
	TokenDecrement:   "--",
	TokenEQ:          "==",
	TokenNE:          "!=",
	TokenLT:          "<",
	TokenLE:          "<=",
	TokenGT:          ">",
	TokenGE:          ">=",
	TokenAnd:         "&&",
	TokenOr:          "||",
	TokenNot:         "!",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenSemicolon:   ";",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsAssignOp reports whether t is = or one of the compound assignments.
func (t TokenType) IsAssignOp() bool {
	switch t {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign:
		return true
	}
	return false
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"init":  TokenInit,
	"if":    TokenIf,
	"else":  TokenElse,
	"while": TokenWhile,
}

// Keywords returns the reserved words in sorted order.
func Keywords() []string {
	return []string{"else", "if", "init", "while"}
}

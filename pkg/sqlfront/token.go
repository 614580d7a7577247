// Package sqlfront is a thin recursive-descent SQL front end: a lexer and
// parser that turn a SQL statement into a tree.Node plan, the same node
// shapes the optimizer and executor already walk. It does not itself run
// anything — Parse hands the Coordinator a tree, nothing more.
package sqlfront

import "fmt"

// TokenKind tags one lexed unit.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokNumber
	TokString

	// Punctuation
	TokLParen
	TokRParen
	TokComma
	TokSemicolon
	TokDot
	TokStar

	// Comparison operators
	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte

	// Arithmetic operators
	TokPlus
	TokMinus
	TokSlash

	// Keywords
	TokCreate
	TokTable
	TokDrop
	TokCascade
	TokRestrict
	TokPrimary
	TokForeign
	TokKey
	TokReferences
	TokInsert
	TokInto
	TokValues
	TokUpdate
	TokSet
	TokDelete
	TokFrom
	TokWhere
	TokSelect
	TokAs
	TokInner
	TokJoin
	TokNatural
	TokOn
	TokOrder
	TokBy
	TokAsc
	TokDesc
	TokLimit
	TokAnd
	TokOr
	TokNot
	TokIn
	TokExists
	TokBetween
	TokIs
	TokNull
	TokLike
	TokBegin
	TokTransaction
	TokCommit
	TokAbort
	TokInteger
	TokFloatType
	TokChar
	TokVarchar
	TokBoolean
	TokTrue
	TokFalse
)

var keywords = map[string]TokenKind{
	"CREATE":      TokCreate,
	"TABLE":       TokTable,
	"DROP":        TokDrop,
	"CASCADE":     TokCascade,
	"RESTRICT":    TokRestrict,
	"PRIMARY":     TokPrimary,
	"FOREIGN":     TokForeign,
	"KEY":         TokKey,
	"REFERENCES":  TokReferences,
	"INSERT":      TokInsert,
	"INTO":        TokInto,
	"VALUES":      TokValues,
	"UPDATE":      TokUpdate,
	"SET":         TokSet,
	"DELETE":      TokDelete,
	"FROM":        TokFrom,
	"WHERE":       TokWhere,
	"SELECT":      TokSelect,
	"AS":          TokAs,
	"INNER":       TokInner,
	"JOIN":        TokJoin,
	"NATURAL":     TokNatural,
	"ON":          TokOn,
	"ORDER":       TokOrder,
	"BY":          TokBy,
	"ASC":         TokAsc,
	"DESC":        TokDesc,
	"LIMIT":       TokLimit,
	"AND":         TokAnd,
	"OR":          TokOr,
	"NOT":         TokNot,
	"IN":          TokIn,
	"EXISTS":      TokExists,
	"BETWEEN":     TokBetween,
	"IS":          TokIs,
	"NULL":        TokNull,
	"LIKE":        TokLike,
	"BEGIN":       TokBegin,
	"TRANSACTION": TokTransaction,
	"COMMIT":      TokCommit,
	"ABORT":       TokAbort,
	"INTEGER":     TokInteger,
	"FLOAT":       TokFloatType,
	"CHAR":        TokChar,
	"VARCHAR":     TokVarchar,
	"BOOLEAN":     TokBoolean,
	"TRUE":        TokTrue,
	"FALSE":       TokFalse,
}

// Token is one lexed unit: its kind, and the literal text it came from
// (an identifier's name, a number's digits, a string's unescaped body).
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

func (t Token) String() string {
	return fmt.Sprintf("%v(%q)@%d", t.Kind, t.Text, t.Pos)
}

package sqlfront

import (
	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/tree"
)

// Parser is a recursive-descent parser over a flat Token stream. It builds
// a tree.Node plan directly — there is no separate AST; the algebraic tree
// is the only representation the rest of the system needs to see.
type Parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses exactly one statement. A trailing ';' is optional;
// any token left after the statement (or after its ';') is a parse error.
func Parse(src string) (*tree.Node, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseStatement()
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) at(k TokenKind) bool { return p.cur().Kind == k }

func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if !p.at(k) {
		return Token{}, &errors.ParseError{Pos: p.cur().Pos, Message: "expected " + what + ", found " + p.cur().String()}
	}
	return p.advance(), nil
}

func (p *Parser) parseStatement() (*tree.Node, error) {
	var node *tree.Node
	var err error
	switch p.cur().Kind {
	case TokCreate:
		node, err = p.parseCreateTable()
	case TokDrop:
		node, err = p.parseDropTable()
	case TokInsert:
		node, err = p.parseInsert()
	case TokUpdate:
		node, err = p.parseUpdate()
	case TokDelete:
		node, err = p.parseDelete()
	case TokSelect:
		node, err = p.parseSelect()
	case TokBegin:
		node, err = p.parseBeginTransaction()
	case TokCommit:
		p.advance()
		node = tree.New(tree.COMMIT, "")
	default:
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "unexpected token " + p.cur().String()}
	}
	if err != nil {
		return nil, err
	}
	if p.at(TokSemicolon) {
		p.advance()
	}
	if !p.at(TokEOF) {
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "unexpected trailing input " + p.cur().String()}
	}
	return node, nil
}

func (p *Parser) parseBeginTransaction() (*tree.Node, error) {
	p.advance() // BEGIN
	if _, err := p.expect(TokTransaction, "TRANSACTION"); err != nil {
		return nil, err
	}
	return tree.New(tree.BEGIN_TRANSACTION, ""), nil
}

// parseCreateTable handles CREATE TABLE name (col TYPE [PRIMARY KEY], ...).
// FOREIGN KEY REFERENCES clauses are accepted and discarded: the executor's
// CREATE_TABLE handler (by design — see DESIGN.md) only threads primary-key
// columns through to storage.Schema, so there is nowhere for a parsed FK to
// land yet.
func (p *Parser) parseCreateTable() (*tree.Node, error) {
	p.advance() // CREATE
	if _, err := p.expect(TokTable, "TABLE"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}

	children := []*tree.Node{tree.New(tree.TABLE_NAME, nameTok.Text)}
	for {
		if p.at(TokForeign) {
			if err := p.skipForeignKeyClause(); err != nil {
				return nil, err
			}
		} else {
			def, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			children = append(children, def)
		}
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return tree.New(tree.CREATE_TABLE, "", children...), nil
}

func (p *Parser) parseColumnDef() (*tree.Node, error) {
	nameTok, err := p.expect(TokIdent, "column name")
	if err != nil {
		return nil, err
	}
	typeName, err := p.parseColumnType()
	if err != nil {
		return nil, err
	}
	value := nameTok.Text + ":" + typeName
	if p.at(TokPrimary) {
		p.advance()
		if _, err := p.expect(TokKey, "KEY"); err != nil {
			return nil, err
		}
		value += ":PK"
	}
	return tree.New(tree.COLUMN_DEF, value), nil
}

func (p *Parser) parseColumnType() (string, error) {
	switch p.cur().Kind {
	case TokInteger:
		p.advance()
		return "INT", nil
	case TokFloatType:
		p.advance()
		return "FLOAT", nil
	case TokBoolean:
		p.advance()
		return "BOOLEAN", nil
	case TokChar, TokVarchar:
		p.advance()
		if p.at(TokLParen) {
			p.advance()
			if _, err := p.expect(TokNumber, "size"); err != nil {
				return "", err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return "", err
			}
		}
		return "VARCHAR", nil
	default:
		return "", &errors.ParseError{Pos: p.cur().Pos, Message: "expected a column type, found " + p.cur().String()}
	}
}

func (p *Parser) skipForeignKeyClause() error {
	p.advance() // FOREIGN
	if _, err := p.expect(TokKey, "KEY"); err != nil {
		return err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	if _, err := p.expect(TokIdent, "column name"); err != nil {
		return err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(TokReferences, "REFERENCES"); err != nil {
		return err
	}
	if _, err := p.expect(TokIdent, "referenced table"); err != nil {
		return err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	if _, err := p.expect(TokIdent, "referenced column"); err != nil {
		return err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	return nil
}

// parseDropTable handles DROP TABLE name [CASCADE|RESTRICT].
func (p *Parser) parseDropTable() (*tree.Node, error) {
	p.advance() // DROP
	if _, err := p.expect(TokTable, "TABLE"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	value := ""
	switch p.cur().Kind {
	case TokCascade:
		p.advance()
		value = "CASCADE"
	case TokRestrict:
		p.advance()
		value = "RESTRICT"
	}
	return tree.New(tree.DROP_TABLE, value, tree.New(tree.TABLE_NAME, nameTok.Text)), nil
}

// parseInsert handles INSERT INTO t [(cols)] VALUES (vals).
func (p *Parser) parseInsert() (*tree.Node, error) {
	p.advance() // INSERT
	if _, err := p.expect(TokInto, "INTO"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	children := []*tree.Node{tree.New(tree.TABLE_NAME, nameTok.Text)}

	if p.at(TokLParen) {
		cols, err := p.parseColumnNameList()
		if err != nil {
			return nil, err
		}
		children = append(children, cols)
	}

	if _, err := p.expect(TokValues, "VALUES"); err != nil {
		return nil, err
	}
	for {
		list, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		children = append(children, list)
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	return tree.New(tree.INSERT_QUERY, "", children...), nil
}

func (p *Parser) parseColumnNameList() (*tree.Node, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var cols []*tree.Node
	for {
		nameTok, err := p.expect(TokIdent, "column name")
		if err != nil {
			return nil, err
		}
		cols = append(cols, tree.New(tree.COLUMN_NAME, nameTok.Text))
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return tree.New(tree.LIST, "", cols...), nil
}

func (p *Parser) parseValueList() (*tree.Node, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var vals []*tree.Node
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return tree.New(tree.LIST, "", vals...), nil
}

func (p *Parser) parseLiteral() (*tree.Node, error) {
	switch p.cur().Kind {
	case TokNumber:
		t := p.advance()
		return tree.New(tree.LITERAL_NUMBER, t.Text), nil
	case TokMinus:
		p.advance()
		t, err := p.expect(TokNumber, "number")
		if err != nil {
			return nil, err
		}
		return tree.New(tree.LITERAL_NUMBER, "-"+t.Text), nil
	case TokString:
		t := p.advance()
		return tree.New(tree.LITERAL_STRING, t.Text), nil
	case TokTrue:
		p.advance()
		return tree.New(tree.LITERAL_BOOLEAN, "true"), nil
	case TokFalse:
		p.advance()
		return tree.New(tree.LITERAL_BOOLEAN, "false"), nil
	case TokNull:
		p.advance()
		return tree.New(tree.LITERAL_NULL, ""), nil
	default:
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "expected a literal value, found " + p.cur().String()}
	}
}

// parseUpdate handles UPDATE t SET col=expr[, ...] [WHERE cond].
func (p *Parser) parseUpdate() (*tree.Node, error) {
	p.advance() // UPDATE
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSet, "SET"); err != nil {
		return nil, err
	}

	children := []*tree.Node{tree.New(tree.TABLE_NAME, nameTok.Text)}
	for {
		colTok, err := p.expect(TokIdent, "column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokEq, "="); err != nil {
			return nil, err
		}
		valExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, tree.New(tree.ASSIGNMENT, "", tree.New(tree.COLUMN_NAME, colTok.Text), valExpr))
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}

	if p.at(TokWhere) {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		children = append(children, cond)
	}
	return tree.New(tree.UPDATE_QUERY, "", children...), nil
}

// parseDelete handles DELETE FROM t [WHERE cond].
func (p *Parser) parseDelete() (*tree.Node, error) {
	p.advance() // DELETE
	if _, err := p.expect(TokFrom, "FROM"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	children := []*tree.Node{tree.New(tree.TABLE_NAME, nameTok.Text)}
	if p.at(TokWhere) {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		children = append(children, cond)
	}
	return tree.New(tree.DELETE_QUERY, "", children...), nil
}

// parseSelect handles SELECT (*|col[,...]) FROM table_expr [WHERE cond]
// [ORDER BY col [ASC|DESC][, ...]] [LIMIT n].
func (p *Parser) parseSelect() (*tree.Node, error) {
	p.advance() // SELECT

	star := false
	var cols []*tree.Node
	if p.at(TokStar) {
		p.advance()
		star = true
	} else {
		for {
			col, err := p.parseProjectionItem()
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			if p.at(TokComma) {
				p.advance()
				continue
			}
			break
		}
	}

	if _, err := p.expect(TokFrom, "FROM"); err != nil {
		return nil, err
	}
	source, err := p.parseTableExpr()
	if err != nil {
		return nil, err
	}

	if p.at(TokWhere) {
		p.advance()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		source = tree.New(tree.FILTER, "", source, cond)
	}

	if p.at(TokOrder) {
		p.advance()
		if _, err := p.expect(TokBy, "BY"); err != nil {
			return nil, err
		}
		items := []*tree.Node{source}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.at(TokComma) {
				p.advance()
				continue
			}
			break
		}
		source = tree.New(tree.SORT, "", items...)
	}

	if p.at(TokLimit) {
		p.advance()
		n, err := p.expect(TokNumber, "limit count")
		if err != nil {
			return nil, err
		}
		source = tree.New(tree.LIMIT, n.Text, source)
	}

	if star {
		return tree.New(tree.PROJECT, "*", source), nil
	}
	projChildren := append(cols, source)
	return tree.New(tree.PROJECT, "", projChildren...), nil
}

func (p *Parser) parseProjectionItem() (*tree.Node, error) {
	return p.parseArith()
}

func (p *Parser) parseOrderItem() (*tree.Node, error) {
	col, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	dir := "ASC"
	switch p.cur().Kind {
	case TokAsc:
		p.advance()
	case TokDesc:
		p.advance()
		dir = "DESC"
	}
	return tree.New(tree.ORDER_ITEM, dir, col), nil
}

// parseTableExpr handles a FROM clause: a comma-join or JOIN chain of
// base relations, each optionally aliased with AS.
func (p *Parser) parseTableExpr() (*tree.Node, error) {
	left, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case TokComma:
			p.advance()
			right, err := p.parseTableRef()
			if err != nil {
				return nil, err
			}
			left = tree.New(tree.JOIN, "", left, right)
		case TokInner, TokJoin:
			if p.at(TokInner) {
				p.advance()
			}
			if _, err := p.expect(TokJoin, "JOIN"); err != nil {
				return nil, err
			}
			right, err := p.parseTableRef()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokOn, "ON"); err != nil {
				return nil, err
			}
			cond, err := p.parseCondition()
			if err != nil {
				return nil, err
			}
			left = tree.New(tree.JOIN, "", left, right, cond)
		case TokNatural:
			p.advance()
			if _, err := p.expect(TokJoin, "JOIN"); err != nil {
				return nil, err
			}
			right, err := p.parseTableRef()
			if err != nil {
				return nil, err
			}
			left = tree.New(tree.JOIN, "", left, right)
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseTableRef() (*tree.Node, error) {
	nameTok, err := p.expect(TokIdent, "table name")
	if err != nil {
		return nil, err
	}
	relation := tree.New(tree.RELATION, "", tree.New(tree.TABLE_NAME, nameTok.Text))
	if p.at(TokAs) {
		p.advance()
		aliasTok, err := p.expect(TokIdent, "alias")
		if err != nil {
			return nil, err
		}
		return tree.New(tree.ALIAS, aliasTok.Text, relation), nil
	}
	if p.at(TokIdent) {
		aliasTok := p.advance()
		return tree.New(tree.ALIAS, aliasTok.Text, relation), nil
	}
	return relation, nil
}

func (p *Parser) parseColumnRef() (*tree.Node, error) {
	first, err := p.expect(TokIdent, "column reference")
	if err != nil {
		return nil, err
	}
	if p.at(TokDot) {
		p.advance()
		colTok, err := p.expect(TokIdent, "column name")
		if err != nil {
			return nil, err
		}
		return tree.New(tree.COLUMN_REF, colTok.Text, tree.New(tree.TABLE_NAME, first.Text)), nil
	}
	return tree.New(tree.COLUMN_REF, first.Text), nil
}

// parseArith parses a +/- term chain of parseFactor results, left-associative.
func (p *Parser) parseArith() (*tree.Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		opTok := p.advance()
		op := "+"
		if opTok.Kind == TokMinus {
			op = "-"
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = tree.New(tree.ARITH_EXPR, op, left, right)
	}
	return left, nil
}

func (p *Parser) parseFactor() (*tree.Node, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) {
		opTok := p.advance()
		op := "*"
		if opTok.Kind == TokSlash {
			op = "/"
		}
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = tree.New(tree.ARITH_EXPR, op, left, right)
	}
	return left, nil
}

func (p *Parser) parseAtom() (*tree.Node, error) {
	switch p.cur().Kind {
	case TokNumber, TokString, TokTrue, TokFalse, TokNull, TokMinus:
		return p.parseLiteral()
	case TokLParen:
		p.advance()
		inner, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokIdent:
		return p.parseColumnRef()
	default:
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "expected an expression, found " + p.cur().String()}
	}
}

// parseCondition is the entry point for any WHERE/ON/HAVING-shaped boolean
// expression: OR over AND over NOT over one comparison/predicate atom.
func (p *Parser) parseCondition() (*tree.Node, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (*tree.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = tree.New(tree.OPERATOR, "OR", left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (*tree.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(TokAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = tree.New(tree.OPERATOR, "AND", left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (*tree.Node, error) {
	if p.at(TokNot) {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return tree.New(tree.OPERATOR, "NOT", inner), nil
	}
	return p.parsePredicate()
}

// parsePredicate handles one bare boolean atom: a comparison, or one of the
// named predicate forms (IN, EXISTS, BETWEEN, IS [NOT] NULL, LIKE), or a
// parenthesized sub-condition.
func (p *Parser) parsePredicate() (*tree.Node, error) {
	if p.at(TokLParen) {
		// Ambiguous with a parenthesized scalar expression; a condition
		// context always wants parseOr recursively here.
		save := p.pos
		p.advance()
		inner, err := p.parseOr()
		if err == nil && p.at(TokRParen) {
			p.advance()
			return inner, nil
		}
		p.pos = save
	}

	if p.at(TokExists) {
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return tree.New(tree.EXISTS_EXPR, "", sub), nil
	}
	// NOT EXISTS(...) never reaches here: parseNot consumes a leading NOT
	// before calling parsePredicate, producing OPERATOR("NOT", EXISTS_EXPR)
	// instead — evalPredicate treats that as equivalent to NOT_EXISTS_EXPR.

	probe, err := p.parseArith()
	if err != nil {
		return nil, err
	}

	switch p.cur().Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte:
		opTok := p.advance()
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		return tree.New(tree.COMPARISON, opTok.Text, probe, right), nil

	case TokBetween:
		p.advance()
		low, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd, "AND"); err != nil {
			return nil, err
		}
		high, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		return tree.New(tree.BETWEEN_EXPR, "", probe, low, high), nil

	case TokLike:
		p.advance()
		pattern, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		return tree.New(tree.LIKE_EXPR, "", probe, pattern), nil

	case TokIs:
		p.advance()
		if p.at(TokNot) {
			p.advance()
			if _, err := p.expect(TokNull, "NULL"); err != nil {
				return nil, err
			}
			return tree.New(tree.IS_NOT_NULL_EXPR, "", probe), nil
		}
		if _, err := p.expect(TokNull, "NULL"); err != nil {
			return nil, err
		}
		return tree.New(tree.IS_NULL_EXPR, "", probe), nil

	case TokIn:
		p.advance()
		list, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return tree.New(tree.IN_EXPR, "", append([]*tree.Node{probe}, list.Children...)...), nil

	case TokNot:
		if p.peekKind(1) == TokIn {
			p.advance()
			p.advance()
			list, err := p.parseValueList()
			if err != nil {
				return nil, err
			}
			return tree.New(tree.NOT_IN_EXPR, "", append([]*tree.Node{probe}, list.Children...)...), nil
		}
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "expected IN after NOT in predicate position"}

	default:
		return nil, &errors.ParseError{Pos: p.cur().Pos, Message: "expected a comparison or predicate operator, found " + p.cur().String()}
	}
}

func (p *Parser) peekKind(offset int) TokenKind {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return TokEOF
	}
	return p.toks[idx].Kind
}

package compiler

import (
	"strconv"

	"chef/internal/bytecode"
	"chef/internal/lexer"
)

// Precedence levels from loosest to tightest binding.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

// parseRule gives each token kind its prefix and infix behaviour and the
// precedence it binds at as an infix operator.
type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLParen:       {prefix: grouping, infix: call, precedence: PrecCall},
		lexer.TokenMinus:        {prefix: unary, infix: binary, precedence: PrecTerm},
		lexer.TokenPlus:         {infix: binary, precedence: PrecTerm},
		lexer.TokenSlash:        {infix: binary, precedence: PrecFactor},
		lexer.TokenStar:         {infix: binary, precedence: PrecFactor},
		lexer.TokenBang:         {prefix: unary},
		lexer.TokenBangEqual:    {infix: binary, precedence: PrecEquality},
		lexer.TokenEqualEqual:   {infix: binary, precedence: PrecEquality},
		lexer.TokenGreater:      {infix: binary, precedence: PrecComparison},
		lexer.TokenGreaterEqual: {infix: binary, precedence: PrecComparison},
		lexer.TokenLess:         {infix: binary, precedence: PrecComparison},
		lexer.TokenLessEqual:    {infix: binary, precedence: PrecComparison},
		lexer.TokenIdent:        {prefix: variable},
		lexer.TokenString:       {prefix: stringLiteral},
		lexer.TokenNumber:       {prefix: number},
		lexer.TokenAnd:          {infix: and, precedence: PrecAnd},
		lexer.TokenOr:           {infix: or, precedence: PrecOr},
		lexer.TokenFalse:        {prefix: literal},
		lexer.TokenNil:          {prefix: literal},
		lexer.TokenTrue:         {prefix: literal},
	}
}

func getRule(kind lexer.TokenType) parseRule {
	return rules[kind]
}

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence folds the left operand with every infix operator whose
// precedence is at least the floor, emitting code as it goes.
func (c *Compiler) parsePrecedence(precedence Precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := precedence <= PrecAssignment
	prefix(c, canAssign)

	for precedence <= getRule(c.current.Type).precedence {
		c.advance()
		getRule(c.previous.Type).infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(lexer.TokenRParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	operator := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch operator {
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot)
	}
}

func binary(c *Compiler, _ bool) {
	operator := c.previous.Type
	c.parsePrecedence(getRule(operator).precedence + 1)
	switch operator {
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	}
}

func number(c *Compiler, _ bool) {
	value, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.error("Could not parse number literal.")
		return
	}
	c.emitConstant(value)
}

func stringLiteral(c *Compiler, _ bool) {
	lexeme := c.previous.Lexeme
	c.emitConstant(lexeme[1 : len(lexeme)-1])
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		c.emitOp(bytecode.OpNil)
	case lexer.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

// and short-circuits: the right operand is skipped when the left is
// falsey, leaving the left operand as the result.
func and(c *Compiler, _ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or yields the first truthy operand without evaluating the rest.
func or(c *Compiler, _ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOp(bytecode.OpCall)
	c.emitByte(argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRParen) {
		for {
			c.expression()
			if count == bytecode.MaxArity {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRParen, "Expect ')' after arguments.")
	return byte(count)
}

package problem

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
)

type Problem struct {
	Question string `json:"question"`
	Answer   int    `json:"answer"`
}

type Operation string

const (
	OpAdd       Operation = "+"
	OpSubtract  Operation = "-"
	OpMultiply  Operation = "*"
	OpDivide    Operation = "/"
	OpMultiStep Operation = "multi"
)

const (
	minBandWidth  = 3
	bandFraction  = 0.4
	distinctTries = 5
)

var symbols = map[Operation]string{
	OpAdd:      "+",
	OpSubtract: "-",
	OpMultiply: "×",
	OpDivide:   "÷",
}

// Generator draws problems from a level config. It is not safe for
// concurrent use; each room owns its own.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator wraps rng; a nil rng gets a randomly seeded PCG source.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng}
}

// Operations lists what cfg allows, in a stable order.
func Operations(cfg difficulty.Config) []Operation {
	ops := []Operation{OpAdd, OpSubtract, OpMultiply}
	if cfg.Division != nil {
		ops = append(ops, OpDivide)
	}
	if cfg.MultiStep != nil && cfg.MultiStep.Enabled && len(cfg.MultiStep.Operations) > 0 {
		ops = append(ops, OpMultiStep)
	}
	return ops
}

// draw picks one operation cfg allows and generates a problem for it.
func (g *Generator) draw(cfg difficulty.Config) Problem {
	ops := Operations(cfg)
	return g.generate(ops[g.rng.IntN(len(ops))], cfg)
}

// Pair draws two problems of the same operation from one narrow operand
// band so consecutive turns are comparably hard.
func (g *Generator) Pair(cfg difficulty.Config) (Problem, Problem) {
	ops := Operations(cfg)
	op := ops[g.rng.IntN(len(ops))]
	band := g.narrow(cfg)

	first := g.generate(op, band)
	second := g.generate(op, band)
	for i := 0; i < distinctTries && second.Question == first.Question; i++ {
		second = g.generate(op, band)
	}
	return first, second
}

func (g *Generator) generate(op Operation, cfg difficulty.Config) Problem {
	switch op {
	case OpSubtract:
		a := g.intIn(cfg.Subtraction.Min, cfg.Subtraction.Max)
		b := g.intIn(cfg.Subtraction.Min, cfg.Subtraction.Max)
		if b > a {
			a, b = b, a
		}
		return binary(a, OpSubtract, b, a-b)

	case OpMultiply:
		a := g.intIn(cfg.Multiplication.Min1, cfg.Multiplication.Max1)
		b := g.intIn(cfg.Multiplication.Min2, cfg.Multiplication.Max2)
		return binary(a, OpMultiply, b, a*b)

	case OpDivide:
		if cfg.Division == nil {
			return g.generate(OpMultiply, cfg)
		}
		d := cfg.Division
		divisor := g.intIn(max(1, d.MinDivisor), d.MaxDivisor)
		answer := g.intIn(d.MinAnswer, d.MaxAnswer)
		return binary(divisor*answer, OpDivide, divisor, answer)

	case OpMultiStep:
		if cfg.MultiStep == nil || len(cfg.MultiStep.Operations) == 0 {
			return g.generate(OpAdd, cfg)
		}
		return g.multiStep(cfg)

	default:
		a := g.intIn(cfg.Addition.Min, cfg.Addition.Max)
		b := g.intIn(cfg.Addition.Min, cfg.Addition.Max)
		return binary(a, OpAdd, b, a+b)
	}
}

// multiStep builds "(a op b) op c", evaluated left to right.
func (g *Generator) multiStep(cfg difficulty.Config) Problem {
	allowed := cfg.MultiStep.Operations
	op1 := Operation(allowed[g.rng.IntN(len(allowed))])
	op2 := Operation(allowed[g.rng.IntN(len(allowed))])

	a, b := g.operands(op1, cfg)
	if op1 == OpSubtract && b > a {
		a, b = b, a
	}
	left := apply(a, op1, b)

	var c int
	switch op2 {
	case OpMultiply:
		c = g.intIn(cfg.Multiplication.Min2, cfg.Multiplication.Max2)
	case OpSubtract:
		if left < cfg.Subtraction.Min {
			op2 = OpAdd
			c = g.intIn(cfg.Addition.Min, cfg.Addition.Max)
			break
		}
		c = g.intIn(cfg.Subtraction.Min, min(cfg.Subtraction.Max, left))
	default:
		op2 = OpAdd
		c = g.intIn(cfg.Addition.Min, cfg.Addition.Max)
	}

	q := fmt.Sprintf("(%d %s %d) %s %d", a, symbols[op1], b, symbols[op2], c)
	return Problem{Question: q, Answer: apply(left, op2, c)}
}

func (g *Generator) operands(op Operation, cfg difficulty.Config) (int, int) {
	switch op {
	case OpMultiply:
		return g.intIn(cfg.Multiplication.Min1, cfg.Multiplication.Max1), g.intIn(cfg.Multiplication.Min2, cfg.Multiplication.Max2)
	case OpSubtract:
		return g.intIn(cfg.Subtraction.Min, cfg.Subtraction.Max), g.intIn(cfg.Subtraction.Min, cfg.Subtraction.Max)
	default:
		return g.intIn(cfg.Addition.Min, cfg.Addition.Max), g.intIn(cfg.Addition.Min, cfg.Addition.Max)
	}
}

// narrow replaces every operand range with a random sub-band of it.
func (g *Generator) narrow(cfg difficulty.Config) difficulty.Config {
	out := cfg
	out.Addition.Min, out.Addition.Max = g.band(cfg.Addition.Min, cfg.Addition.Max)
	out.Subtraction.Min, out.Subtraction.Max = g.band(cfg.Subtraction.Min, cfg.Subtraction.Max)
	m := cfg.Multiplication
	out.Multiplication.Min1, out.Multiplication.Max1 = g.band(m.Min1, m.Max1)
	out.Multiplication.Min2, out.Multiplication.Max2 = g.band(m.Min2, m.Max2)
	if cfg.Division != nil {
		d := *cfg.Division
		d.MinDivisor, d.MaxDivisor = g.band(d.MinDivisor, d.MaxDivisor)
		d.MinAnswer, d.MaxAnswer = g.band(d.MinAnswer, d.MaxAnswer)
		out.Division = &d
	}
	return out
}

// band picks a window at least minBandWidth wide covering about 40% of [lo, hi].
func (g *Generator) band(lo, hi int) (int, int) {
	width := hi - lo + 1
	if width <= minBandWidth {
		return lo, hi
	}
	w := max(minBandWidth, int(math.Round(float64(width)*bandFraction)))
	start := lo + g.rng.IntN(width-w+1)
	return start, start + w - 1
}

func (g *Generator) intIn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

func apply(a int, op Operation, b int) int {
	switch op {
	case OpSubtract:
		return a - b
	case OpMultiply:
		return a * b
	default:
		return a + b
	}
}

func binary(a int, op Operation, b, answer int) Problem {
	return Problem{Question: fmt.Sprintf("%d %s %d", a, symbols[op], b), Answer: answer}
}

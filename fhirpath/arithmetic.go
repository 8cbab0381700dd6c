package fhirpath

import "github.com/cockroachdb/apd/v3"

// decimalCtx widens apd.BaseContext to 34 digits, enough headroom for
// clinical dosages and lab values without introducing rounding artifacts.
var decimalCtx = apd.BaseContext.WithPrecision(34)

// bigDecimalOps performs the four arithmetic operators plus integer div/mod
// over apd.Decimal, used by evalArithmetic.
type bigDecimalOps struct{}

func (bigDecimalOps) apply(op BinaryOp, a, b Number) (Collection, error) {
	res := new(apd.Decimal)
	var err error
	switch op {
	case OpAdd:
		_, err = decimalCtx.Add(res, a.Decimal, b.Decimal)
	case OpSub:
		_, err = decimalCtx.Sub(res, a.Decimal, b.Decimal)
	case OpMul:
		_, err = decimalCtx.Mul(res, a.Decimal, b.Decimal)
	case OpDiv:
		_, err = decimalCtx.Quo(res, a.Decimal, b.Decimal)
	case OpIntDiv:
		_, err = decimalCtx.QuoInteger(res, a.Decimal, b.Decimal)
	case OpMod:
		_, err = decimalCtx.Rem(res, a.Decimal, b.Decimal)
	default:
		return nil, evalErrorf("unsupported arithmetic operator %q", op)
	}
	if err != nil {
		return nil, evalErrorf("arithmetic error: %v", err)
	}
	return Collection{Number{res}}, nil
}

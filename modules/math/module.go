// Package math provides arithmetic task functions over the numbers a grid
// file produces: int for whole values and float64 otherwise.
package math

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// ErrDivisionByZero is returned by divide and divmod for a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the arithmetic functions.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunc("double", Double)
	r.RegisterFunc("add", Add)
	r.RegisterFunc("sum", Sum)
	r.RegisterFunc("multiply", Multiply)
	r.RegisterFunc("divide", Divide)
	r.RegisterFunc("divmod", DivMod)
}

// Double returns twice its single argument.
func Double(args ...any) (any, error) {
	if err := arity("double", args, 1); err != nil {
		return nil, err
	}
	return Multiply(args[0], 2)
}

// Add returns the sum of exactly two arguments.
func Add(args ...any) (any, error) {
	if err := arity("add", args, 2); err != nil {
		return nil, err
	}
	return Sum(args...)
}

// Sum adds any number of arguments. Ints stay ints until a float shows up.
func Sum(args ...any) (any, error) {
	var (
		isum    int
		fsum    float64
		isFloat bool
	)
	for i, a := range args {
		switch v := a.(type) {
		case int:
			isum += v
		case float64:
			fsum += v
			isFloat = true
		default:
			return nil, fmt.Errorf("sum: argument %d: %w", i, notNumber(a))
		}
	}
	if isFloat {
		return fsum + float64(isum), nil
	}
	return isum, nil
}

// Multiply returns the product of all arguments.
func Multiply(args ...any) (any, error) {
	iprod, fprod, isFloat := 1, 1.0, false
	for i, a := range args {
		switch v := a.(type) {
		case int:
			iprod *= v
		case float64:
			fprod *= v
			isFloat = true
		default:
			return nil, fmt.Errorf("multiply: argument %d: %w", i, notNumber(a))
		}
	}
	if isFloat {
		return fprod * float64(iprod), nil
	}
	return iprod, nil
}

// Divide returns a/b as a float64.
func Divide(args ...any) (any, error) {
	if err := arity("divide", args, 2); err != nil {
		return nil, err
	}
	a, err := toFloat(args[0])
	if err != nil {
		return nil, fmt.Errorf("divide: %w", err)
	}
	b, err := toFloat(args[1])
	if err != nil {
		return nil, fmt.Errorf("divide: %w", err)
	}
	if b == 0 {
		return nil, ErrDivisionByZero
	}
	return a / b, nil
}

// DivMod returns the integer quotient and remainder as two outputs.
func DivMod(args ...any) (any, error) {
	if err := arity("divmod", args, 2); err != nil {
		return nil, err
	}
	a, ok := args[0].(int)
	if !ok {
		return nil, fmt.Errorf("divmod: %w", notNumber(args[0]))
	}
	b, ok := args[1].(int)
	if !ok {
		return nil, fmt.Errorf("divmod: %w", notNumber(args[1]))
	}
	if b == 0 {
		return nil, ErrDivisionByZero
	}
	return []any{a / b, a % b}, nil
}

func arity(name string, args []any, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s: expected %d arguments, got %d", name, want, len(args))
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, notNumber(v)
}

func notNumber(v any) error {
	return fmt.Errorf("expected a number, got %T", v)
}

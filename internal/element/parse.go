package element

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseConverter builds a converter chain from its configuration spelling,
// e.g. []string{"scale:3", "invert"}. An empty list yields Direct.
//
// Recognized forms: direct, invert, keep_positive, scale:N, multiply:F, divide:F,
// add:F, subtract:F, null_if:N (N may be written in hex, e.g. null_if:0xFFFF).
func ParseConverter(tokens []string) (Converter, error) {
	chain := make([]Converter, 0, len(tokens))
	for _, tok := range tokens {
		c, err := parseOne(tok)
		if err != nil {
			return Direct, err
		}
		chain = append(chain, c)
	}
	return Chain(chain...), nil
}

func parseOne(tok string) (Converter, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(tok)), ":")

	noArg := func(c Converter) (Converter, error) {
		if hasArg {
			return Direct, fmt.Errorf("element: converter %q takes no argument", name)
		}
		return c, nil
	}
	floatArg := func(build func(float64) Converter) (Converter, error) {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || !hasArg {
			return Direct, fmt.Errorf("element: converter %q needs a number, got %q", name, arg)
		}
		if (name == "multiply" || name == "divide") && f == 0 {
			return Direct, fmt.Errorf("element: converter %q must not be zero", name)
		}
		return build(f), nil
	}

	switch name {
	case "direct", "":
		return noArg(Direct)
	case "invert":
		return noArg(Invert)
	case "keep_positive":
		return noArg(KeepPositive)
	case "scale":
		n, err := strconv.Atoi(arg)
		if err != nil || !hasArg {
			return Direct, fmt.Errorf("element: converter scale needs an integer exponent, got %q", arg)
		}
		return ScaleFactor(n), nil
	case "multiply":
		return floatArg(Multiply)
	case "divide":
		return floatArg(Divide)
	case "add":
		return floatArg(Add)
	case "subtract":
		return floatArg(Subtract)
	case "null_if":
		n, err := strconv.ParseInt(arg, 0, 64)
		if err != nil || !hasArg {
			return Direct, fmt.Errorf("element: converter null_if needs an integer sentinel, got %q", arg)
		}
		return NullIf(n), nil
	}
	return Direct, fmt.Errorf("element: unknown converter %q", tok)
}

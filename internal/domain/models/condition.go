package models

import (
	"strconv"
	"strings"

	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
)

// Longest symbols first so ">=" is not read as ">".
var conditionSymbols = []struct {
	symbol string
	op     Operator
}{
	{"!=", OpNe},
	{">=", OpGte},
	{"<=", OpLte},
	{"=~", OpIn},
	{"=", OpEq},
	{">", OpGt},
	{"<", OpLt},
}

// ParseCondition parses expressions such as "robot=r2", "x>=1.5" or
// "label=~a,b,c" (in). Values are typed with ParseValue.
func ParseCondition(expr string) (Condition, error) {
	pos, width, op := -1, 0, Operator("")
	for _, s := range conditionSymbols {
		i := strings.Index(expr, s.symbol)
		if i < 0 {
			continue
		}
		if pos < 0 || i < pos || (i == pos && len(s.symbol) > width) {
			pos, width, op = i, len(s.symbol), s.op
		}
	}
	if pos <= 0 {
		return Condition{}, domainerrors.NewValidationError("invalid condition", expr)
	}

	field := strings.TrimSpace(expr[:pos])
	raw := strings.TrimSpace(expr[pos+width:])

	parse := ParseValue
	if field == FieldID || field == FieldCreationTime {
		parse = unquote
	}

	cond := Condition{Field: field, Operator: op}
	if op == OpIn {
		parts := strings.Split(raw, ",")
		values := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			values = append(values, parse(strings.TrimSpace(p)))
		}
		cond.Value = values
	} else {
		cond.Value = parse(raw)
	}

	if err := cond.Validate(); err != nil {
		return Condition{}, err
	}
	return cond, nil
}

// ParseValue converts a textual value to int64, float64 or bool when it
// parses as one. Double-quoted values are always strings.
func ParseValue(raw string) interface{} {
	if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
		return raw[1 : len(raw)-1]
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && strings.ContainsAny(raw, "0123456789") {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

// unquote keeps raw as a string, dropping surrounding double quotes.
func unquote(raw string) interface{} {
	return strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
}

// ParseMetadata parses "key=value" pairs into metadata.
func ParseMetadata(pairs []string) (Metadata, error) {
	m := make(Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, domainerrors.NewValidationError("invalid metadata pair", pair)
		}
		m[key] = ParseValue(strings.TrimSpace(value))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LenientFloat は数値として解釈できない値を 0 として受け入れる float64 です。
// 入力を止めないことを優先し、UnmarshalJSON / Scan はエラーを返しません。
type LenientFloat float64

// LenientInt は LenientFloat の整数版です。
type LenientInt int

func parseLenient(s string) float64 {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func lenientFromSQL(src interface{}) float64 {
	switch v := src.(type) {
	case nil:
		return 0
	case float64:
		return v
	case int64:
		return float64(v)
	case []byte:
		return parseLenient(string(v))
	case string:
		return parseLenient(v)
	default:
		return parseLenient(fmt.Sprint(v))
	}
}

func (f *LenientFloat) UnmarshalJSON(b []byte) error {
	*f = LenientFloat(parseLenient(string(b)))
	return nil
}

func (f *LenientFloat) Scan(src interface{}) error {
	*f = LenientFloat(lenientFromSQL(src))
	return nil
}

func (i *LenientInt) UnmarshalJSON(b []byte) error {
	*i = LenientInt(parseLenient(string(b)))
	return nil
}

func (i *LenientInt) Scan(src interface{}) error {
	*i = LenientInt(lenientFromSQL(src))
	return nil
}

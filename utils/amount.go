package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals 金额最小单位的小数位（wei）
const AmountDecimals = 18

// FormatAmount 把最小单位金额格式化为可读字符串，例如 1500000000000000000 -> "1.5"
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -AmountDecimals).String()
}

// ParseAmount 解析可读金额为最小单位，小数位超出精度时截断
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(AmountDecimals).BigInt(), nil
}

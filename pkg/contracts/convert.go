package contracts

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"medici/pkg/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ConvertArgs 将配置文件中的原始值（字符串/数字/布尔）按 ABI 参数类型转换为 Go 类型
func ConvertArgs(inputs abi.Arguments, raw []interface{}) ([]interface{}, error) {
	if len(inputs) != len(raw) {
		return nil, fmt.Errorf("argument count mismatch: want %d, got %d", len(inputs), len(raw))
	}
	out := make([]interface{}, len(raw))
	for i, arg := range inputs {
		v, err := ConvertValue(arg.Type, raw[i])
		if err != nil {
			name := arg.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, arg.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

// ConvertValue 转换单个值
func ConvertValue(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("invalid address %q", x)
			}
			return common.HexToAddress(x), nil
		}
	case abi.BoolTy:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		}
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for unsigned type", n)
		}
		return fitInteger(t, n)
	case abi.BytesTy:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return common.FromHex(x), nil
		}
	case abi.FixedBytesTy:
		s, ok := v.(string)
		if !ok {
			break
		}
		b := common.FromHex(s)
		if len(b) > t.Size {
			return nil, fmt.Errorf("value longer than bytes%d", t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(common.LeftPadBytes(b, t.Size)))
		return arr.Interface(), nil
	case abi.SliceTy:
		items, ok := v.([]interface{})
		if !ok {
			break
		}
		slice := reflect.MakeSlice(t.GetType(), 0, len(items))
		for _, item := range items {
			conv, err := ConvertValue(*t.Elem, item)
			if err != nil {
				return nil, err
			}
			slice = reflect.Append(slice, reflect.ValueOf(conv))
		}
		return slice.Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t.String())
}

// toBigInt 支持十进制/十六进制字符串、"0.82 ether" 形式以及 YAML 数字
func toBigInt(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return new(big.Int).Set(x), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("non-integral number %v (quote it with a unit, e.g. \"0.82 ether\")", x)
		}
		return big.NewInt(int64(x)), nil
	case string:
		s := strings.TrimSpace(x)
		if fields := strings.Fields(s); len(fields) == 2 {
			decimals, ok := unitDecimals[strings.ToLower(fields[1])]
			if !ok {
				return nil, fmt.Errorf("unknown unit %q", fields[1])
			}
			return types.ParseUnits(fields[0], decimals)
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return nil, fmt.Errorf("invalid hex integer %q", s)
			}
			return n, nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

var unitDecimals = map[string]uint8{
	"wei":   0,
	"gwei":  9,
	"ether": 18,
}

// fitInteger 按 ABI 的 Go 表示（uint8..uint64 或 *big.Int）返回整数
func fitInteger(t abi.Type, n *big.Int) (interface{}, error) {
	limit := t.Size
	if t.T == abi.IntTy {
		limit--
	}
	if n.BitLen() > limit {
		return nil, fmt.Errorf("value %s overflows %s", n, t.String())
	}
	goType := t.GetType()
	switch goType.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
	}
	return n, nil
}

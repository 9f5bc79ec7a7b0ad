package symbol

import (
	"strings"
)

// 常见计价币，按后缀匹配拆分 BASEQUOTE 形式的交易对。
var quoteCurrencies = []string{"USDT", "FDUSD", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Parse 识别 "SOL/USDT"、"SOLUSDT"、"SOL/USDT:USDT" 等写法。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// ToBinance 把任意写法转换成 Binance REST 使用的交易对；无法识别时原样大写返回。
func ToBinance(raw string) string {
	if b := Parse(raw).Binance(); b != "" {
		return b
	}
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, "/", "")
}

// FileStem 返回用于输出文件名的小写前缀，例如 SOLUSDT -> sol。
func FileStem(raw string) string {
	if base := Parse(raw).Base; base != "" {
		return strings.ToLower(base)
	}
	return strings.ToLower(ToBinance(raw))
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

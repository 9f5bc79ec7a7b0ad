package market

import (
	"strconv"
	"time"
)

// TimeLayout 是 CSV 与控制台使用的时间格式（UTC，无时区后缀）。
const TimeLayout = time.DateTime

// Timestamp 总是返回 UTC 时间文本，用于 CSV 等数据产物。
func (c Candle) Timestamp() string {
	return c.Time().Format(TimeLayout)
}

// TimeString 用于控制台与日志；未设置时间时显示 "-"。
func (c Candle) TimeString() string {
	if c.OpenTime <= 0 {
		return "-"
	}
	return c.Time().Format(TimeLayout)
}

// FormatPrice 输出最短可还原的十进制表示，不补零、不用科学计数法。
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Row 按 timestamp,Open,High,Low,Close 的顺序返回字符串字段。
func (c Candle) Row() []string {
	return []string{
		c.Timestamp(),
		FormatPrice(c.Open),
		FormatPrice(c.High),
		FormatPrice(c.Low),
		FormatPrice(c.Close),
	}
}

// ParseTime 解析 TimeLayout 格式的 UTC 时间。
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

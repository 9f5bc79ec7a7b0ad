package market

import "sort"

// Merge 拼接多批 K 线，按 OpenTime 去重（保留最先出现的一条）并升序排列。
func Merge(batches ...[]Candle) Candles {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, total)
	out := make(Candles, 0, total)
	for _, batch := range batches {
		for _, c := range batch {
			if _, dup := seen[c.OpenTime]; dup {
				continue
			}
			seen[c.OpenTime] = struct{}{}
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out
}

// IsStrictlyAscending 检查时间戳严格递增（同时意味着无重复）。
func (cs Candles) IsStrictlyAscending() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].OpenTime <= cs[i-1].OpenTime {
			return false
		}
	}
	return true
}

// Span 返回首尾开盘时间；空序列返回 0,0。
func (cs Candles) Span() (int64, int64) {
	first, ok := cs.First()
	if !ok {
		return 0, 0
	}
	last, _ := cs.Last()
	return first.OpenTime, last.OpenTime
}

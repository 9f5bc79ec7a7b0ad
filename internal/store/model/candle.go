package model

import (
	"gorm.io/datatypes"
)

// CandleModel 以 (symbol, timeframe, open_time) 为主键，重复写入时覆盖价格。
type CandleModel struct {
	Symbol    string  `gorm:"column:symbol;primaryKey;size:32"`
	Timeframe string  `gorm:"column:timeframe;primaryKey;size:8"`
	OpenTime  int64   `gorm:"column:open_time;primaryKey;autoIncrement:false"`
	Open      float64 `gorm:"column:open"`
	High      float64 `gorm:"column:high"`
	Low       float64 `gorm:"column:low"`
	Close     float64 `gorm:"column:close"`
	UpdatedAt int64   `gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (CandleModel) TableName() string { return "candles" }

// FetchRunModel 记录每次拉取的统计；Meta 保存完整的结果摘要 JSON。
type FetchRunModel struct {
	ID          string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	Symbol      string         `gorm:"column:symbol;index:idx_fetch_runs_pair" json:"symbol"`
	Timeframe   string         `gorm:"column:timeframe;index:idx_fetch_runs_pair" json:"timeframe"`
	Source      string         `gorm:"column:source" json:"source"`
	Requests    int            `gorm:"column:requests" json:"requests"`
	Rows        int            `gorm:"column:rows_fetched" json:"rows"`
	StopReason  string         `gorm:"column:stop_reason" json:"stop_reason"`
	WindowStart int64          `gorm:"column:window_start" json:"window_start"`
	WindowEnd   int64          `gorm:"column:window_end" json:"window_end"`
	MinTime     int64          `gorm:"column:min_time" json:"min_time"`
	MaxTime     int64          `gorm:"column:max_time" json:"max_time"`
	Meta        datatypes.JSON `gorm:"column:meta" json:"meta"`
	CreatedAt   int64          `gorm:"column:created_at;autoCreateTime:milli;index" json:"created_at"`
}

func (FetchRunModel) TableName() string { return "fetch_runs" }

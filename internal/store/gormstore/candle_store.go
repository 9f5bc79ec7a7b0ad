package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candlepull/internal/backtest"
	"candlepull/internal/logger"
	"candlepull/internal/market"
	"candlepull/internal/pkg/symbol"
	"candlepull/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const (
	upsertBatchSize   = 500
	defaultQueryLimit = 200
	maxQueryLimit     = 5000
)

// Manifest 描述某个 symbol@timeframe 在库里的覆盖范围。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
}

// CandleStore 把拉取结果落到单个 sqlite 文件里。
type CandleStore struct {
	db   *gorm.DB
	path string
}

func NewCandleStore(path string) (*CandleStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := db.AutoMigrate(&model.CandleModel{}, &model.FetchRunModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("迁移失败: %w", err)
	}
	return &CandleStore{db: db, path: path}, nil
}

func (s *CandleStore) Path() string { return s.path }

func (s *CandleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResult 在同一事务里 upsert K 线并记录本次拉取，返回写入行数。
func (s *CandleStore) SaveResult(ctx context.Context, res *backtest.FetchResult, source string) (int, error) {
	if res == nil || len(res.Candles) == 0 {
		return 0, nil
	}
	pair, tf := keyOf(res.Symbol, res.Interval)
	rows := make([]model.CandleModel, 0, len(res.Candles))
	for _, c := range res.Candles {
		rows = append(rows, model.CandleModel{
			Symbol:    pair,
			Timeframe: tf,
			OpenTime:  c.OpenTime,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
		})
	}
	first, _ := res.Candles.First()
	last, _ := res.Candles.Last()
	meta, err := json.Marshal(res)
	if err != nil {
		return 0, err
	}
	run := model.FetchRunModel{
		ID:          uuid.NewString(),
		Symbol:      pair,
		Timeframe:   tf,
		Source:      source,
		Requests:    res.Requests,
		Rows:        len(rows),
		StopReason:  string(res.Stop),
		WindowStart: res.Start,
		WindowEnd:   res.End,
		MinTime:     first.OpenTime,
		MaxTime:     last.OpenTime,
		Meta:        datatypes.JSON(meta),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "updated_at"}),
		}).CreateInBatches(&rows, upsertBatchSize).Error; err != nil {
			return err
		}
		return tx.Create(&run).Error
	})
	if err != nil {
		return 0, fmt.Errorf("写入 %s %s 失败: %w", pair, tf, err)
	}
	logger.Debugf("[store] %s %s 写入 %d 行 run=%s", pair, tf, len(rows), run.ID)
	return len(rows), nil
}

// Manifest 统计库中已有数据；没有数据时返回 Rows=0。
func (s *CandleStore) Manifest(ctx context.Context, pair, timeframe string) (Manifest, error) {
	pair, tf := keyOf(pair, timeframe)
	var agg struct {
		MinTime  sql.NullInt64
		MaxTime  sql.NullInt64
		RowCount int64
	}
	err := s.db.WithContext(ctx).Model(&model.CandleModel{}).
		Select("MIN(open_time) AS min_time, MAX(open_time) AS max_time, COUNT(1) AS row_count").
		Where("symbol = ? AND timeframe = ?", pair, tf).
		Scan(&agg).Error
	if err != nil {
		return Manifest{}, err
	}
	out := Manifest{Symbol: pair, Timeframe: tf, MinTime: agg.MinTime.Int64, MaxTime: agg.MaxTime.Int64, Rows: agg.RowCount}
	var run model.FetchRunModel
	err = s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", pair, tf).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return Manifest{}, err
	}
	out.LastSyncAt = run.CreatedAt
	return out, nil
}

// QueryCandles 按 open_time 升序返回 [start, end] 内的数据；start/end 为 0 表示不限。
func (s *CandleStore) QueryCandles(ctx context.Context, pair, timeframe string, start, end int64, limit int) (market.Candles, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	q := s.scope(ctx, pair, timeframe)
	if start > 0 {
		q = q.Where("open_time >= ?", start)
	}
	if end > 0 {
		q = q.Where("open_time <= ?", end)
	}
	var rows []model.CandleModel
	if err := q.Order("open_time ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCandles(rows), nil
}

func (s *CandleStore) AllCandles(ctx context.Context, pair, timeframe string) (market.Candles, error) {
	var rows []model.CandleModel
	if err := s.scope(ctx, pair, timeframe).Order("open_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCandles(rows), nil
}

// ListRuns 按时间倒序返回最近的拉取记录。
func (s *CandleStore) ListRuns(ctx context.Context, limit int) ([]model.FetchRunModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.FetchRunModel
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (s *CandleStore) scope(ctx context.Context, pair, timeframe string) *gorm.DB {
	pair, tf := keyOf(pair, timeframe)
	return s.db.WithContext(ctx).Model(&model.CandleModel{}).Where("symbol = ? AND timeframe = ?", pair, tf)
}

func keyOf(pair, timeframe string) (string, string) {
	return symbol.ToBinance(pair), strings.TrimSpace(timeframe)
}

func toCandles(rows []model.CandleModel) market.Candles {
	out := make(market.Candles, 0, len(rows))
	for _, r := range rows {
		out = append(out, market.Candle{OpenTime: r.OpenTime, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close})
	}
	return out
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bhds/internal/market"

	_ "modernc.org/sqlite"
)

// 数据分层（stage）：同一 symbol 在不同处理阶段各占一个序列。
type Stage string

const (
	StageParsed    Stage = "parsed"    // 归档源解析结果
	StageAPI       Stage = "api"       // 实时 API 补齐结果
	StageHolo      Stage = "holo"      // 合并 + 补洞后的全量序列
	StageResampled Stage = "resampled" // 重采样输出
	StageFunding   Stage = "funding"   // 资金费率
)

// SeriesKey 唯一标识一条有序分区序列。
type SeriesKey struct {
	TradeType market.TradeType
	Stage     Stage
	Symbol    string
	Interval  string
	Freq      PartitionFreq
}

func (k SeriesKey) id() string {
	return string(k.TradeType) + "/" + string(k.Stage) + "/" + strings.ToUpper(k.Symbol) + "@" + strings.ToLower(k.Interval)
}

func (k SeriesKey) validate() error {
	if k.Symbol == "" || k.Interval == "" {
		return fmt.Errorf("%w: symbol/interval 不能为空", market.ErrValidation)
	}
	if k.Freq != FreqDaily && k.Freq != FreqMonthly {
		return fmt.Errorf("%w: 未设置分区粒度", market.ErrValidation)
	}
	return nil
}

// ErrCorrupted 表示分区数据不可读或内部不一致。读取端不会返回
// 截断的部分数据，由上层决定是否从上游重建分区。
var ErrCorrupted = errors.New("storage corruption")

// Store 管理按序列惰性打开的 SQLite 文件。每个序列一个文件，
// 分区是文件内按时间边界划定的事务性区间；WAL + 单连接保证
// 同一分区的写入天然串行。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(key SeriesKey) (*sql.DB, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	id := key.id()
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[id]; ok && db != nil {
		return db, nil
	}
	path := s.seriesPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, key); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	s.dbs[id] = db
	return db, nil
}

func (s *Store) seriesPath(key SeriesKey) string {
	dir := filepath.Join(s.root, string(key.TradeType), string(key.Stage), strings.ToUpper(key.Symbol))
	return filepath.Join(dir, strings.ToLower(key.Interval)+".db")
}

// DropSymbol 删除某 trade_type/stage 下一个 symbol 的全部序列文件。
// 用于清理重新分段后不再存在的段序列；目录不存在时为无操作。
func (s *Store) DropSymbol(tradeType market.TradeType, stage Stage, symbol string) error {
	symbol = strings.ToUpper(symbol)
	prefix := string(tradeType) + "/" + string(stage) + "/" + symbol + "@"
	s.mu.Lock()
	for id, db := range s.dbs {
		if strings.HasPrefix(id, prefix) {
			if db != nil {
				_ = db.Close()
			}
			delete(s.dbs, id)
		}
	}
	s.mu.Unlock()
	dir := filepath.Join(s.root, string(tradeType), string(stage), symbol)
	return os.RemoveAll(dir)
}

// Symbols 列出某 trade_type/stage 下已有序列的 symbol。
func (s *Store) Symbols(tradeType market.TradeType, stage Stage) ([]string, error) {
	dir := filepath.Join(s.root, string(tradeType), string(stage))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	return symbols, nil
}

func ensureSchema(db *sql.DB, key SeriesKey) error {
	if key.Stage == StageFunding {
		_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS funding_rates (
				settle_time INTEGER PRIMARY KEY,
				rate        REAL NOT NULL
			)`)
		return err
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			open_time       INTEGER PRIMARY KEY,
			close_time      INTEGER NOT NULL,
			open            REAL NOT NULL,
			high            REAL NOT NULL,
			low             REAL NOT NULL,
			close           REAL NOT NULL,
			volume          REAL NOT NULL,
			quote_volume    REAL NOT NULL,
			trades          INTEGER NOT NULL,
			taker_buy_base  REAL NOT NULL,
			taker_buy_quote REAL NOT NULL,
			vwap            REAL NOT NULL DEFAULT 0,
			funding_rate    REAL NOT NULL DEFAULT 0,
			funding_price   REAL NOT NULL DEFAULT 0,
			funding_time    INTEGER NOT NULL DEFAULT 0
		)`)
	return err
}

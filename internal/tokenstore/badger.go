package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// gcInterval はディスクモードでのvalue log GCの実行間隔。
const gcInterval = 10 * time.Minute

// BadgerKV はBadger v3を使用したKVの実装。
// Dirが空の場合はインメモリモードで動作し、プロセス終了で全トークンが失われる。
type BadgerKV struct {
	db     *badger.DB
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadgerKV はBadgerKVを開く。
func OpenBadgerKV(dir string, logger *slog.Logger) (*BadgerKV, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	kv := &BadgerKV{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	// インメモリモードではvalue logを持たないためGC不要
	if dir == "" {
		close(kv.doneCh)
	} else {
		go kv.gcLoop()
	}

	logger.Info("token store opened", "dir", dir, "in_memory", dir == "")
	return kv, nil
}

// SetWithTTL は値をTTL付きで書き込む。
// badgerのトランザクションは中断できないため、ctxは開始前にのみ確認する。
func (k *BadgerKV) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, value).WithTTL(ttl))
	})
}

// Get は値を取得する。
func (k *BadgerKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete はキーを削除する。
func (k *BadgerKV) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Close はGCループを停止してDBを閉じる。
func (k *BadgerKV) Close() error {
	close(k.stopCh)
	<-k.doneCh

	if err := k.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger: %w", err)
	}
	return nil
}

func (k *BadgerKV) gcLoop() {
	defer close(k.doneCh)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				// 回収対象がなくなるまで繰り返す
				if err := k.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						k.logger.Warn("badger value log gc failed", "error", err)
					}
					break
				}
			}
		case <-k.stopCh:
			return
		}
	}
}

// badgerLogger はBadgerのLoggerインターフェースをslogに変換する。
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ KV = (*BadgerKV)(nil)

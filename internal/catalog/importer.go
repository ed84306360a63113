// Package catalog は蔵書カタログの一括登録を提供する。
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookman/internal/model"
)

// maxFieldLength はタイトル・著者名の最大文字数。
const maxFieldLength = 500

// BookCreator は蔵書を登録するインターフェース。
// repository.PostgresBookRepoが満たす。
type BookCreator interface {
	Create(ctx context.Context, book *model.Book) error
}

// RowError はCSVの1行の検証エラー。
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ImportResult は一括登録の結果。
type ImportResult struct {
	Imported int
	Skipped  []RowError
}

// Importer はCSVから蔵書を一括登録する。
// 同じISBNの蔵書は複本として別々に登録する。
type Importer struct {
	books  BookCreator
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(books BookCreator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		books:  books,
		logger: logger,
		nowFn:  time.Now,
	}
}

// ImportCSV はヘッダー行付きのCSVを読み込み、蔵書を登録する。
// 列はtitle, authorが必須で、isbn, descriptionは任意。列の順序は問わない。
// 検証に失敗した行はスキップしてImportResult.Skippedに記録する。
// 登録処理でエラーが発生した場合はその時点で中断する。
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("CSVが空です")
		}
		return nil, fmt.Errorf("CSVヘッダーの読み込みに失敗: %w", err)
	}

	columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	now := im.nowFn()

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("CSVの読み込みに失敗: %w", err)
		}
		line, _ := reader.FieldPos(0)

		book, reason := columns.toBook(record)
		if reason != "" {
			result.Skipped = append(result.Skipped, RowError{Line: line, Reason: reason})
			im.logger.Warn("蔵書の行をスキップしました",
				slog.Int("line", line),
				slog.String("reason", reason),
			)
			continue
		}

		book.ID = uuid.New().String()
		book.CreatedAt = now
		book.UpdatedAt = now

		if err := im.books.Create(ctx, book); err != nil {
			im.logger.Error("蔵書の登録でエラー",
				slog.Int("line", line),
				slog.String("title", book.Title),
				slog.String("error", err.Error()),
			)
			return result, fmt.Errorf("蔵書の登録に失敗 (line %d): %w", line, err)
		}
		result.Imported++
	}

	im.logger.Info("蔵書の一括登録が完了しました",
		slog.Int("imported", result.Imported),
		slog.Int("skipped", len(result.Skipped)),
	)

	return result, nil
}

// columnIndex はヘッダー名から列位置への対応。-1は列なし。
type columnIndex struct {
	title, author, isbn, description int
}

func parseHeader(header []string) (*columnIndex, error) {
	cols := &columnIndex{title: -1, author: -1, isbn: -1, description: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "title":
			cols.title = i
		case "author":
			cols.author = i
		case "isbn":
			cols.isbn = i
		case "description":
			cols.description = i
		}
	}
	if cols.title < 0 || cols.author < 0 {
		return nil, fmt.Errorf("CSVヘッダーにtitleとauthorの列が必要です")
	}
	return cols, nil
}

func (c *columnIndex) toBook(record []string) (*model.Book, string) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	book := &model.Book{
		Title:       field(c.title),
		Author:      field(c.author),
		ISBN:        normalizeISBN(field(c.isbn)),
		Description: field(c.description),
	}

	switch {
	case book.Title == "":
		return nil, "title is required"
	case book.Author == "":
		return nil, "author is required"
	case len([]rune(book.Title)) > maxFieldLength:
		return nil, "title is too long"
	case len([]rune(book.Author)) > maxFieldLength:
		return nil, "author is too long"
	}
	return book, ""
}

// normalizeISBN はハイフンと空白を取り除く。
func normalizeISBN(s string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}

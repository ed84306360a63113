package catalog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// mockBookCreator はBookCreatorのテスト用モック。
type mockBookCreator struct {
	createFn func(ctx context.Context, book *model.Book) error
	created  []*model.Book
}

func (m *mockBookCreator) Create(ctx context.Context, book *model.Book) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, book); err != nil {
			return err
		}
	}
	m.created = append(m.created, book)
	return nil
}

func newTestImporter(creator BookCreator, buf *bytes.Buffer) *Importer {
	im := NewImporter(creator, slog.New(slog.NewJSONHandler(buf, nil)))
	im.nowFn = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return im
}

func TestImportCSV_ImportsAllRows(t *testing.T) {
	var buf bytes.Buffer
	creator := &mockBookCreator{}
	im := newTestImporter(creator, &buf)

	csvData := `title,author,isbn,description
The Go Programming Language,Alan Donovan,978-0-13-419044-0,Classic
Concurrency in Go,Katherine Cox-Buday,,
`
	result, err := im.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2", result.Imported)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", result.Skipped)
	}
	if len(creator.created) != 2 {
		t.Fatalf("created %d books, want 2", len(creator.created))
	}

	first := creator.created[0]
	if first.Title != "The Go Programming Language" || first.Author != "Alan Donovan" {
		t.Errorf("first book = %+v", first)
	}
	if first.ISBN != "9780134190440" {
		t.Errorf("ISBN = %q, want hyphens removed", first.ISBN)
	}
	if first.Description != "Classic" {
		t.Errorf("Description = %q, want %q", first.Description, "Classic")
	}
	if first.ID == "" || first.ID == creator.created[1].ID {
		t.Error("each book should get a distinct ID")
	}
	if !first.CreatedAt.Equal(first.UpdatedAt) || first.CreatedAt.IsZero() {
		t.Errorf("CreatedAt/UpdatedAt should be set to now, got %v / %v", first.CreatedAt, first.UpdatedAt)
	}
}

func TestImportCSV_ColumnOrderAndCase(t *testing.T) {
	var buf bytes.Buffer
	creator := &mockBookCreator{}
	im := newTestImporter(creator, &buf)

	csvData := "\ufeffAuthor,Title\nRob Pike,The Practice of Programming\n"
	result, err := im.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", result.Imported)
	}
	if creator.created[0].Title != "The Practice of Programming" || creator.created[0].Author != "Rob Pike" {
		t.Errorf("book = %+v", creator.created[0])
	}
}

func TestImportCSV_SkipsInvalidRows(t *testing.T) {
	var buf bytes.Buffer
	creator := &mockBookCreator{}
	im := newTestImporter(creator, &buf)

	csvData := `title,author
,Nobody
Untitled Author,
Valid,Writer
`
	result, err := im.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("Skipped = %v, want 2 entries", result.Skipped)
	}
	if result.Skipped[0].Line != 2 || result.Skipped[0].Reason != "title is required" {
		t.Errorf("Skipped[0] = %+v", result.Skipped[0])
	}
	if result.Skipped[1].Line != 3 || result.Skipped[1].Reason != "author is required" {
		t.Errorf("Skipped[1] = %+v", result.Skipped[1])
	}
	if !strings.Contains(buf.String(), "蔵書の行をスキップしました") {
		t.Errorf("スキップのログが出力されていない: %s", buf.String())
	}
}

func TestImportCSV_MissingRequiredHeader(t *testing.T) {
	var buf bytes.Buffer
	im := newTestImporter(&mockBookCreator{}, &buf)

	_, err := im.ImportCSV(context.Background(), strings.NewReader("title,isbn\nGo,123\n"))
	if err == nil {
		t.Fatal("expected error for missing author column")
	}
}

func TestImportCSV_EmptyInput(t *testing.T) {
	var buf bytes.Buffer
	im := newTestImporter(&mockBookCreator{}, &buf)

	_, err := im.ImportCSV(context.Background(), strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty CSV")
	}
}

func TestImportCSV_StopsOnCreateError(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	creator := &mockBookCreator{
		createFn: func(ctx context.Context, book *model.Book) error {
			calls++
			if calls == 2 {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	im := newTestImporter(creator, &buf)

	csvData := "title,author\nA,X\nB,Y\nC,Z\n"
	result, err := im.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err == nil {
		t.Fatal("expected error when Create fails")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error should mention the failing line, got: %v", err)
	}
	if result == nil || result.Imported != 1 {
		t.Errorf("result = %+v, want Imported=1", result)
	}
	if calls != 2 {
		t.Errorf("Create called %d times, want 2 (stop after failure)", calls)
	}
}

func TestRowError_Error(t *testing.T) {
	err := RowError{Line: 7, Reason: "title is required"}
	if err.Error() != "line 7: title is required" {
		t.Errorf("Error() = %q", err.Error())
	}
}

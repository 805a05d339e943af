package pipeline

import (
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	item := types.NewItem("https://example.com")
	item.Set("title", "  Hello World  ")
	item.Set("extra", " spaces ")

	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.GetString("title") != "Hello World" {
		t.Errorf("expected trimmed title, got %q", result.GetString("title"))
	}
	if result.GetString("extra") != "spaces" {
		t.Errorf("expected trimmed extra, got %q", result.GetString("extra"))
	}
}

func TestPipelineDropStopsChain(t *testing.T) {
	p := New(testLogger)
	p.Use(&RequiredFieldsMiddleware{Fields: []string{"title"}})
	p.Use(&TrimMiddleware{}) // should never run once dropped

	item := types.NewItem("https://example.com")
	item.Set("body", "no title field")

	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Error("item missing a required field should be dropped (nil, nil)")
	}
}

func TestPipelineWrapsMiddlewareError(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})

	item := types.NewItem("https://example.com")
	_, err := p.Process(item)
	if err == nil {
		t.Fatal("expected an error from the failing middleware")
	}
	perr, ok := err.(*types.PipelineError)
	if !ok {
		t.Fatalf("expected *types.PipelineError, got %T", err)
	}
	if perr.Stage != "failing" {
		t.Errorf("expected stage %q, got %q", "failing", perr.Stage)
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(item *types.Item) (*types.Item, error) {
	return nil, errProcessFailed
}

var errProcessFailed = &processError{"boom"}

type processError struct{ msg string }

func (e *processError) Error() string { return e.msg }

func TestFieldFilterMiddleware(t *testing.T) {
	m := &FieldFilterMiddleware{Fields: map[string]bool{"title": true}}

	item := types.NewItem("https://example.com")
	item.Set("title", "Hello")
	item.Set("body", "unwanted")

	result, err := m.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Has("body") {
		t.Error("body should have been filtered out")
	}
	if !result.Has("title") {
		t.Error("title should have survived the filter")
	}
}

func TestFieldRenameMiddleware(t *testing.T) {
	m := &FieldRenameMiddleware{Mapping: map[string]string{"old": "new"}}

	item := types.NewItem("https://example.com")
	item.Set("old", "value")

	result, _ := m.Process(item)
	if result.Has("old") {
		t.Error("old field name should be gone")
	}
	if result.GetString("new") != "value" {
		t.Errorf("expected renamed field to carry the value, got %q", result.GetString("new"))
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{"title"}}

	item1 := types.NewItem("https://example.com")
	item1.Set("title", "Hello")
	result, err := m.Process(item1)
	if err != nil || result == nil {
		t.Error("item with required field should pass")
	}

	item2 := types.NewItem("https://example.com")
	item2.Set("body", "no title")
	result, err = m.Process(item2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Error("item missing required field should be dropped (nil)")
	}
}

func TestRequiredFieldsMiddlewareEmptyStringDrops(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{"title"}}

	item := types.NewItem("https://example.com")
	item.Set("title", "")
	result, _ := m.Process(item)
	if result != nil {
		t.Error("empty required field should be treated as missing")
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware("url")

	item1 := types.NewItem("https://example.com/page1")
	item1.Set("title", "Hello")

	result, err := m.Process(item1)
	if err != nil || result == nil {
		t.Fatal("first item should pass dedup")
	}

	item2 := types.NewItem("https://example.com/page1")
	item2.Set("title", "Hello Again")

	result, _ = m.Process(item2)
	if result != nil {
		t.Error("duplicate item should be dropped (nil result)")
	}

	item3 := types.NewItem("https://example.com/page2")
	item3.Set("title", "Different")

	result, err = m.Process(item3)
	if err != nil || result == nil {
		t.Fatal("different URL should pass dedup")
	}
}

func TestDedupMiddlewareFallsBackToURL(t *testing.T) {
	m := NewDedupMiddleware("checksum")

	item1 := types.NewItem("https://example.com/unique")
	result, err := m.Process(item1)
	if err != nil || result == nil {
		t.Fatal("item with no dedup key set should fall back to URL and pass once")
	}

	item2 := types.NewItem("https://example.com/unique")
	result, _ = m.Process(item2)
	if result != nil {
		t.Error("same URL with no dedup key should be treated as a duplicate")
	}
}

func TestDefaultValueMiddleware(t *testing.T) {
	m := &DefaultValueMiddleware{Defaults: map[string]any{"status": "ok"}}

	item := types.NewItem("https://example.com")
	result, err := m.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := result.Get("status"); v != "ok" {
		t.Errorf("expected default value to be applied, got %v", v)
	}

	item2 := types.NewItem("https://example.com")
	item2.Set("status", "custom")
	result2, _ := m.Process(item2)
	if v, _ := result2.Get("status"); v != "custom" {
		t.Errorf("existing value should not be overwritten, got %v", v)
	}
}

func TestTrimMiddleware(t *testing.T) {
	m := &TrimMiddleware{}

	item := types.NewItem("https://example.com")
	item.Set("title", "  padded  ")
	item.Set("count", 5)

	result, err := m.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.GetString("title") != "padded" {
		t.Errorf("expected trimmed string, got %q", result.GetString("title"))
	}
	if v, _ := result.Get("count"); v != 5 {
		t.Errorf("non-string field should be left untouched, got %v", v)
	}
}

func TestPipelineLen(t *testing.T) {
	p := New(testLogger)
	if p.Len() != 0 {
		t.Fatalf("expected empty pipeline, got %d", p.Len())
	}
	p.Use(&TrimMiddleware{})
	p.Use(&DefaultValueMiddleware{})
	if p.Len() != 2 {
		t.Errorf("expected 2 middlewares, got %d", p.Len())
	}
}

func TestExtractRoutingHintsMigratesSentinelKeys(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	item := types.NewItem("https://example.com")
	item.Set("title", "Hello")
	item.Set("__mysql__table", "pages")

	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Has("__mysql__table") {
		t.Error("sentinel routing key should have been stripped from Fields")
	}
	if v, ok := result.Hints.Extra["mysql.table"]; !ok || v != "pages" {
		t.Errorf("expected Hints.Extra[mysql.table]=pages, got %v (ok=%v)", v, ok)
	}
}

func TestExtractRoutingHintsSelectsNamedRoute(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{}) // default chain: only trims

	var routedRan bool
	p.Route("archive", recordingMiddleware{ran: &routedRan})

	item := types.NewItem("https://example.com")
	item.Set("__pipeline__", "archive")
	item.Set("title", "  padded  ")

	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !routedRan {
		t.Error("expected the named route's middleware to run instead of the default chain")
	}
	if result.Hints.Pipeline != "archive" {
		t.Errorf("expected Hints.Pipeline to be set to %q, got %q", "archive", result.Hints.Pipeline)
	}
	// Default chain (TrimMiddleware) should not have run for a routed item.
	if result.GetString("title") != "  padded  " {
		t.Errorf("routed item should skip the default chain, got %q", result.GetString("title"))
	}
}

func TestExtractRoutingHintsUnmatchedRouteFallsBackToDefault(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	item := types.NewItem("https://example.com")
	item.Set("__pipeline__", "nonexistent")
	item.Set("title", "  padded  ")

	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.GetString("title") != "padded" {
		t.Errorf("expected fallback to default chain to trim, got %q", result.GetString("title"))
	}
}

type recordingMiddleware struct {
	ran *bool
}

func (recordingMiddleware) Name() string { return "recording" }
func (m recordingMiddleware) Process(item *types.Item) (*types.Item, error) {
	*m.ran = true
	return item, nil
}

func BenchmarkPipeline(b *testing.B) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(&DefaultValueMiddleware{Defaults: map[string]any{"status": "ok"}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		item := types.NewItem("https://example.com")
		item.Set("title", "  Hello World  ")
		item.Set("body", "  Content  ")
		p.Process(item)
	}
}

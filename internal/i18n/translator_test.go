package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTranslate_MissingKeyReturnsKey(t *testing.T) {
	tr, err := NewTranslator("", "", logging.Nop())
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	if got := tr.Translate("NOT_A_KEY", map[string]string{"x": "y"}); got != "NOT_A_KEY" {
		t.Errorf("got %q", got)
	}
	if got := tr.EntityName(25); got != "poke_25" {
		t.Errorf("EntityName without locale = %q", got)
	}
}

func TestLocaleFilesLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "en.json"), `{"poke_25": "Pikachu", "poke_1": "Bulbasaur"}`)
	writeFile(t, filepath.Join(dir, "de.yaml"), "poke_1: Bisasam\nSHINY_STATS_TITLE: \"Shiny-Statistik {{date}}\"\n")

	tr, err := NewTranslator(dir, "de", logging.Nop())
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}

	if got := tr.EntityName(1); got != "Bisasam" {
		t.Errorf("locale override = %q", got)
	}
	if got := tr.EntityName(25); got != "Pikachu" {
		t.Errorf("fallback locale = %q", got)
	}
	if got := tr.Render(TitleMessage{Category: domain.CategoryShiny, Date: "2026/10/18"}); got != "Shiny-Statistik 2026/10/18" {
		t.Errorf("title = %q", got)
	}
	if got := tr.Number(1234567); got != "1.234.567" {
		t.Errorf("Number = %q", got)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "en.json")
	writeFile(t, path, `{"poke_4": "Charmander"}`)

	tr, err := NewTranslator(dir, "en", logging.Nop())
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	writeFile(t, path, `{"poke_4": "Glumanda"}`)
	if got := tr.EntityName(4); got != "Charmander" {
		t.Errorf("before reload = %q", got)
	}
	if err := tr.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := tr.EntityName(4); got != "Glumanda" {
		t.Errorf("after reload = %q", got)
	}
}

func TestReload_BadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "en.json"), `{"poke_4": [`)

	if _, err := NewTranslator(dir, "en", logging.Nop()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRenderMessages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "en.json"), `{"poke_1": "Bulbasaur"}`)
	tr, err := NewTranslator(dir, "en", logging.Nop())
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}

	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "title",
			msg:  TitleMessage{Category: domain.CategoryIV, Date: "2026/10/18", Hours: 24, Threshold: 97.8},
			want: "97.8% IV stats for 2026/10/18 (last 24 hours)",
		},
		{
			name: "separator",
			msg:  SeparatorMessage{Category: domain.CategoryHundo},
			want: separator,
		},
		{
			name: "entity with ratio",
			msg:  EntityLineMessage{Category: domain.CategoryShiny, Stat: domain.CategoryStat{EntityID: 1, Primary: 2, Secondary: 1500}},
			want: "Bulbasaur (#1) 2 shiny of 1,500 seen, 1/750",
		},
		{
			name: "entity without ratio",
			msg:  EntityLineMessage{Category: domain.CategoryHundo, Stat: domain.CategoryStat{EntityID: 7, Primary: 3, Secondary: 2}},
			want: "poke_7 (#7) 3 hundos of 2 seen",
		},
		{
			name: "total",
			msg:  TotalLineMessage{Category: domain.CategoryIV, Stat: domain.CategoryStat{Primary: 4, Secondary: 40}, Threshold: 100},
			want: "Total: 4 at 100%+ of 40 seen, 1/10",
		},
		{
			name: "total without ratio",
			msg:  TotalLineMessage{Category: domain.CategoryShiny},
			want: "Total: 0 shiny of 0 seen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Render(tt.msg); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

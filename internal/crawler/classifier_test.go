package crawler

import (
	"testing"

	"github.com/nao1215/allergenscan/internal/model"
)

func TestClassifierMatches(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	tests := []struct {
		name string
		cand model.LinkCandidate
		want bool
	}{
		{
			name: "keyword in url",
			cand: model.LinkCandidate{URL: "https://example.test/docs/allergy.pdf", Text: "アレルギー情報"},
			want: true,
		},
		{
			name: "keyword in text only",
			cand: model.LinkCandidate{URL: "https://example.test/files/2024_03.pdf", Text: "特定原材料一覧"},
			want: true,
		},
		{
			name: "upper case extension and keyword",
			cand: model.LinkCandidate{URL: "https://example.test/ALLERGEN_LIST.PDF", Text: ""},
			want: true,
		},
		{
			name: "plural ingredients",
			cand: model.LinkCandidate{URL: "https://example.test/menu.pdf", Text: "Ingredients"},
			want: true,
		},
		{
			name: "contains in japanese",
			cand: model.LinkCandidate{URL: "https://example.test/a.pdf", Text: "小麦を含む商品"},
			want: true,
		},
		{
			name: "pdf without keyword",
			cand: model.LinkCandidate{URL: "https://example.test/menu.pdf", Text: "メニュー"},
			want: false,
		},
		{
			name: "keyword without pdf",
			cand: model.LinkCandidate{URL: "https://example.test/allergy.html", Text: "allergy"},
			want: false,
		},
		{
			name: "pdf in query only",
			cand: model.LinkCandidate{URL: "https://example.test/view?file=allergy.pdf", Text: ""},
			want: false,
		},
		{
			name: "pdf path with query",
			cand: model.LinkCandidate{URL: "https://example.test/allergen.pdf?v=2", Text: ""},
			want: true,
		},
		{
			name: "relative url dropped",
			cand: model.LinkCandidate{URL: "/docs/allergy.pdf", Text: "allergy"},
			want: false,
		},
		{
			name: "malformed url dropped",
			cand: model.LinkCandidate{URL: "https://exa mple.test/%zz/allergy.pdf", Text: "allergy"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Matches(tt.cand); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.cand, got, tt.want)
			}
		})
	}
}

func TestClassifierClassify(t *testing.T) {
	t.Parallel()

	t.Run("keeps order and drops non-matching", func(t *testing.T) {
		t.Parallel()

		cands := []model.LinkCandidate{
			{URL: "https://example.test/b_allergen.pdf", Text: "B"},
			{URL: "https://example.test/menu.pdf", Text: "Menu"},
			{URL: "https://example.test/a_allergen.pdf", Text: "A"},
		}
		hits := NewClassifier().Classify(cands)
		if len(hits) != 2 {
			t.Fatalf("expected 2 hits, got %d", len(hits))
		}
		if hits[0].Text != "B" || hits[1].Text != "A" {
			t.Errorf("expected page order B, A; got %s, %s", hits[0].Text, hits[1].Text)
		}
	})

	t.Run("classifying hits again is stable", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier()
		hits := c.Classify([]model.LinkCandidate{
			{URL: "https://example.test/docs/allergy.pdf", Text: "アレルギー情報"},
			{URL: "https://example.test/x.pdf", Text: "原材料"},
		})
		for _, h := range hits {
			again := c.Classify([]model.LinkCandidate{{URL: h.URL, Text: h.Text}})
			if len(again) != 1 || again[0] != h {
				t.Errorf("expected %+v to classify again, got %+v", h, again)
			}
		}
	})

	t.Run("custom keywords replace defaults", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier(WithKeywords([]string{" Nutrition ", ""}))
		if len(c.Keywords()) != 1 || c.Keywords()[0] != "nutrition" {
			t.Fatalf("unexpected keywords %v", c.Keywords())
		}
		if !c.Matches(model.LinkCandidate{URL: "https://example.test/NUTRITION.pdf"}) {
			t.Error("expected custom keyword to match")
		}
		if c.Matches(model.LinkCandidate{URL: "https://example.test/allergy.pdf"}) {
			t.Error("expected default keyword to be replaced")
		}
	})

	t.Run("empty keyword list keeps defaults", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier(WithKeywords(nil))
		if len(c.Keywords()) != len(DefaultKeywords) {
			t.Errorf("expected %d keywords, got %d", len(DefaultKeywords), len(c.Keywords()))
		}
	})
}

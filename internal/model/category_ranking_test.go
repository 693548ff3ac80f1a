package model

import (
	"strings"
	"testing"
	"time"
)

func TestCategoryRanking_Validate(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		ranking CategoryRanking
		wantErr bool
	}{
		{
			name:    "valid ranking",
			ranking: CategoryRanking{Slug: "fast_food", CategoryID: 3, Score: 2.4},
		},
		{
			name:    "zero score is allowed",
			ranking: CategoryRanking{Slug: "uncategorized", CategoryID: 1},
		},
		{
			name:    "missing slug",
			ranking: CategoryRanking{CategoryID: 3, Score: 1},
			wantErr: true,
			errMsg:  "category slug is required",
		},
		{
			name:    "missing id",
			ranking: CategoryRanking{Slug: "food", Score: 1},
			wantErr: true,
			errMsg:  "category id is required",
		},
		{
			name:    "negative score",
			ranking: CategoryRanking{Slug: "food", CategoryID: 2, Score: -0.1},
			wantErr: true,
			errMsg:  "score must not be negative, got -0.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ranking.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && err.Error() != tt.errMsg {
				t.Errorf("Validate() error = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestCategoryRankings_Sort(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := []struct {
		name     string
		rankings CategoryRankings
		want     []string
	}{
		{
			name: "score descending",
			rankings: CategoryRankings{
				{Slug: "b", CategoryID: 2, Score: 1},
				{Slug: "a", CategoryID: 1, Score: 3},
				{Slug: "c", CategoryID: 3, Score: 2},
			},
			want: []string{"a", "c", "b"},
		},
		{
			name: "recent learned usage breaks score tie",
			rankings: CategoryRankings{
				{Slug: "a", CategoryID: 1, Score: 2, LastLearned: older},
				{Slug: "b", CategoryID: 2, Score: 2, LastLearned: newer},
			},
			want: []string{"b", "a"},
		},
		{
			name: "learned usage beats none",
			rankings: CategoryRankings{
				{Slug: "a", CategoryID: 1, Score: 2},
				{Slug: "b", CategoryID: 2, Score: 2, LastLearned: older},
			},
			want: []string{"b", "a"},
		},
		{
			name: "child beats parent on full tie",
			rankings: CategoryRankings{
				{Slug: "entertainment", CategoryID: 1, Score: 1},
				{Slug: "streaming", CategoryID: 2, Score: 1, IsChild: true},
			},
			want: []string{"streaming", "entertainment"},
		},
		{
			name: "slug is the last resort",
			rankings: CategoryRankings{
				{Slug: "shopping", CategoryID: 1, Score: 1},
				{Slug: "groceries", CategoryID: 2, Score: 1},
			},
			want: []string{"groceries", "shopping"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rankings.Sort()
			for i, slug := range tt.want {
				if tt.rankings[i].Slug != slug {
					t.Errorf("Sort() index %d = %s, want %s", i, tt.rankings[i].Slug, slug)
				}
			}
		})
	}
}

func TestCategoryRankings_Top(t *testing.T) {
	tests := []struct {
		want     *CategoryRanking
		name     string
		rankings CategoryRankings
	}{
		{
			name:     "empty rankings",
			rankings: CategoryRankings{},
			want:     nil,
		},
		{
			name: "multiple rankings",
			rankings: CategoryRankings{
				{Slug: "b", CategoryID: 2, Score: 0.5},
				{Slug: "a", CategoryID: 1, Score: 0.9},
			},
			want: &CategoryRanking{Slug: "a", CategoryID: 1, Score: 0.9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rankings.Top()
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Top() = %v, want nil", got)
			case tt.want != nil && got == nil:
				t.Errorf("Top() = nil, want %v", tt.want)
			case tt.want != nil && got != nil && (got.Slug != tt.want.Slug || got.Score != tt.want.Score):
				t.Errorf("Top() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoryRankings_TopN(t *testing.T) {
	rankings := CategoryRankings{
		{Slug: "a", CategoryID: 1, Score: 5},
		{Slug: "b", CategoryID: 2, Score: 4},
		{Slug: "c", CategoryID: 3, Score: 3},
		{Slug: "d", CategoryID: 4, Score: 2},
	}

	tests := []struct {
		name  string
		first string
		last  string
		n     int
		count int
	}{
		{name: "zero", n: 0, count: 0},
		{name: "negative", n: -1, count: 0},
		{name: "top 1", n: 1, count: 1, first: "a", last: "a"},
		{name: "top 3", n: 3, count: 3, first: "a", last: "c"},
		{name: "more than exists", n: 10, count: 4, first: "a", last: "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rankings.TopN(tt.n)
			if len(got) != tt.count {
				t.Fatalf("TopN(%d) returned %d items, want %d", tt.n, len(got), tt.count)
			}
			if tt.count > 0 {
				if got[0].Slug != tt.first {
					t.Errorf("TopN(%d) first = %s, want %s", tt.n, got[0].Slug, tt.first)
				}
				if got[len(got)-1].Slug != tt.last {
					t.Errorf("TopN(%d) last = %s, want %s", tt.n, got[len(got)-1].Slug, tt.last)
				}
			}
		})
	}
}

func TestCategoryRankings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		rankings CategoryRankings
		wantErr  bool
	}{
		{
			name: "valid rankings",
			rankings: CategoryRankings{
				{Slug: "a", CategoryID: 1, Score: 0.9},
				{Slug: "b", CategoryID: 2, Score: 0.7},
			},
		},
		{
			name: "duplicate category",
			rankings: CategoryRankings{
				{Slug: "a", CategoryID: 1, Score: 0.9},
				{Slug: "a", CategoryID: 1, Score: 0.7},
			},
			wantErr: true,
			errMsg:  "duplicate category",
		},
		{
			name: "invalid ranking",
			rankings: CategoryRankings{
				{Slug: "a", CategoryID: 1, Score: 0.9},
				{CategoryID: 2, Score: 0.7},
			},
			wantErr: true,
			errMsg:  "invalid ranking at index 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rankings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err.Error(), tt.errMsg)
			}
		})
	}
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/spice-tally/internal/model"
)

func TestFormatStatus(t *testing.T) {
	for _, s := range []model.ExpenseStatus{
		model.StatusPending,
		model.StatusAutoConfirmed,
		model.StatusNeedsReview,
		model.StatusConfirmed,
		model.StatusRejected,
	} {
		assert.Contains(t, FormatStatus(s), string(s))
	}
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		want       string
		confidence float64
	}{
		{confidence: 0.9, want: "90%"},
		{confidence: 0.5, want: "50%"},
		{confidence: 0.1, want: "10%"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Contains(t, FormatConfidence(tt.confidence, 0.85, 0.3), tt.want)
		})
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"SLUG", "NAME"}, [][]string{
		{"food", "Food"},
		{"fast_food", "Food / Fast Food"},
	})
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "fast_food")
	assert.Contains(t, out, "Food / Fast Food")
}

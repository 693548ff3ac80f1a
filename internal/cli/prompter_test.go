package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-tally/internal/model"
)

func reviewItem(belowFloor bool) ReviewItem {
	suggested := int64(3)
	return ReviewItem{
		Expense: model.Expense{
			ID:                  "e1",
			UserID:              "u1",
			Description:         "tacos with friends",
			RawText:             "gasté 50 en tacos con amigos",
			Currency:            "MXN",
			AmountCents:         5000,
			SpentAt:             time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Status:              model.StatusNeedsReview,
			SuggestedCategoryID: &suggested,
			Confidence:          0.5,
			BelowFloor:          belowFloor,
		},
		SuggestedLabel: "Food / Fast Food",
		Options: []CategoryOption{
			{ID: 3, Label: "Food / Fast Food"},
			{ID: 5, Label: "Entertainment"},
		},
		Threshold: 0.85,
		Floor:     0.3,
	}
}

func TestPrompter_Review(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		want       ReviewDecision
		belowFloor bool
	}{
		{
			name:  "accept suggestion",
			input: "a\n",
			want:  ReviewDecision{Action: ActionAccept, CategoryID: 3},
		},
		{
			name:  "accept is case insensitive",
			input: "A\n",
			want:  ReviewDecision{Action: ActionAccept, CategoryID: 3},
		},
		{
			name:  "pick another category",
			input: "2\n",
			want:  ReviewDecision{Action: ActionPick, CategoryID: 5},
		},
		{
			name:  "picking the suggestion counts as accept",
			input: "1\n",
			want:  ReviewDecision{Action: ActionAccept, CategoryID: 3},
		},
		{
			name:  "reject with reason",
			input: "r\nduplicate message\n",
			want:  ReviewDecision{Action: ActionReject, Reason: "duplicate message"},
		},
		{
			name:  "skip",
			input: "s\n",
			want:  ReviewDecision{Action: ActionSkip},
		},
		{
			name:  "quit",
			input: "q\n",
			want:  ReviewDecision{Action: ActionQuit},
		},
		{
			name:  "invalid choice retries",
			input: "x\n9\n2\n",
			want:  ReviewDecision{Action: ActionPick, CategoryID: 5},
		},
		{
			name:       "accept unavailable below floor",
			input:      "a\n1\n",
			belowFloor: true,
			want:       ReviewDecision{Action: ActionAccept, CategoryID: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Review(context.Background(), reviewItem(tt.belowFloor))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompter_ReviewOutput(t *testing.T) {
	t.Run("shows suggestion", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader("s\n"), &out)

		_, err := p.Review(context.Background(), reviewItem(false))
		require.NoError(t, err)

		text := out.String()
		assert.Contains(t, text, "tacos with friends")
		assert.Contains(t, text, "50.00 MXN")
		assert.Contains(t, text, "Accept suggestion")
		assert.Contains(t, text, "[2] Entertainment")
	})

	t.Run("below floor hides accept", func(t *testing.T) {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader("s\n"), &out)

		_, err := p.Review(context.Background(), reviewItem(true))
		require.NoError(t, err)

		text := out.String()
		assert.Contains(t, text, "No confident guess")
		assert.NotContains(t, text, "Accept suggestion")
	})
}

func TestPrompter_ReviewErrors(t *testing.T) {
	t.Run("input closed", func(t *testing.T) {
		p := NewPrompter(strings.NewReader(""), &bytes.Buffer{})
		_, err := p.Review(context.Background(), reviewItem(false))
		assert.ErrorIs(t, err, ErrInputTerminated)
	})

	t.Run("canceled context", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("a\n"), &bytes.Buffer{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Review(ctx, reviewItem(false))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPrompter_Stats(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("a\n2\nr\n\ns\nq\n"), &out)
	p.SetTotal(5)

	ctx := context.Background()
	for {
		d, err := p.Review(ctx, reviewItem(false))
		require.NoError(t, err)
		if d.Action == ActionQuit {
			break
		}
	}

	stats := p.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Corrected)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Skipped)

	p.ShowCompletion()
	assert.Contains(t, out.String(), "Review Complete")
}

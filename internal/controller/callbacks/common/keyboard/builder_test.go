package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_Grid(t *testing.T) {
	kb := NewBuilder().
		Grid(2, Button("a", "1"), Button("b", "2"), Button("c", "3")).
		Row().
		Row(Button("d", "4")).
		Build()

	assert.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Len(t, kb.InlineKeyboard[1], 1)
	assert.Equal(t, "3", kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "d", kb.InlineKeyboard[2][0].Text)
}

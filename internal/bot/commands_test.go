package bot

import (
	"context"
	"testing"

	"freelancer-bot/models"

	"github.com/stretchr/testify/assert"
)

func TestCommandRegistryLookup(t *testing.T) {
	r := NewCommandRegistry()
	noop := func(context.Context, models.InboundMessage) error { return nil }
	r.Register("/help", "help", noop)
	r.Register("/End_Bridge_Mode", "end", noop)

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"/help", "/help", true},
		{"  /HELP please", "/help", true},
		{"/end_bridge_mode", "/end_bridge_mode", true},
		{"/helpme", "", false},
		{"help", "", false},
		{"please /help", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := r.Lookup(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, cmd.Token)
			assert.Equal(t, tt.ok, r.IsCommand(tt.text))
		})
	}
}

func TestCommandRegistryHelpSorted(t *testing.T) {
	r := NewCommandRegistry()
	noop := func(context.Context, models.InboundMessage) error { return nil }
	r.Register("/reset", "", noop)
	r.Register("/clear", "", noop)
	r.Register("/info", "", noop)

	var tokens []string
	for _, c := range r.Help() {
		tokens = append(tokens, c.Token)
	}
	assert.Equal(t, []string{"/clear", "/info", "/reset"}, tokens)
}

package bot

import (
	"context"
	"sort"
	"strings"
	"sync"

	"freelancer-bot/models"
)

const (
	CmdClear         = "/clear"
	CmdReset         = "/reset"
	CmdHelp          = "/help"
	CmdInfo          = "/info"
	CmdEndBridgeMode = "/end_bridge_mode"
)

// CommandHandler runs a slash command. msg.Text is the raw text as typed.
type CommandHandler func(ctx context.Context, msg models.InboundMessage) error

type Command struct {
	Token       string
	Description string
	Handler     CommandHandler
}

// CommandRegistry maps slash tokens to handlers. Matching is on the first
// whitespace-separated token, case-insensitive and exact.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]Command)}
}

func (r *CommandRegistry) Register(token, description string, handler CommandHandler) {
	token = strings.ToLower(strings.TrimSpace(token))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[token] = Command{Token: token, Description: description, Handler: handler}
}

func (r *CommandRegistry) Lookup(text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(fields[0])]
	return cmd, ok
}

func (r *CommandRegistry) IsCommand(text string) bool {
	_, ok := r.Lookup(text)
	return ok
}

// Help lists the registered commands sorted by token.
func (r *CommandRegistry) Help() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxrelay/internal/observe"
)

const (
	// DefaultPrefix starts every text command.
	DefaultPrefix = "*"

	// suggestThreshold is the Jaro-Winkler score above which an unknown
	// command is answered with a suggestion instead of being ignored.
	suggestThreshold = 0.9

	defaultCommandTimeout = 30 * time.Second
)

// Command status values recorded in the commands metric.
const (
	StatusOK        = "ok"
	StatusRejected  = "rejected"
	StatusForbidden = "forbidden"
	StatusError     = "error"
	StatusUnknown   = "unknown"
)

// Request is one recognised text command.
type Request struct {
	// Message is the chat message that carried the command.
	Message *discordgo.Message

	// Command is the lowercased command name without the prefix.
	Command string
}

// GuildID returns the guild the command was sent in.
func (r *Request) GuildID() string { return r.Message.GuildID }

// ChannelID returns the text channel the command was sent in.
func (r *Request) ChannelID() string { return r.Message.ChannelID }

// AuthorID returns the ID of the member who sent the command.
func (r *Request) AuthorID() string {
	if r.Message.Author == nil {
		return ""
	}
	return r.Message.Author.ID
}

// Reply is a handler's answer to a command.
type Reply struct {
	// Content is posted as a reply to the command. Empty means no reply.
	Content string

	// Rejected marks answers that refuse the request, such as "not connected".
	Rejected bool
}

// OK returns an accepting reply.
func OK(content string) Reply { return Reply{Content: content} }

// Reject returns a refusing reply.
func Reject(content string) Reply { return Reply{Content: content, Rejected: true} }

// HandlerFunc handles a text command. A returned error is logged and
// answered with [GenericFailure].
type HandlerFunc func(ctx context.Context, req *Request) (Reply, error)

// Command describes a registered text command.
type Command struct {
	// Name is matched case-insensitively after the prefix.
	Name string

	// Description is shown in the help text.
	Description string

	// Restricted commands require the debug role.
	Restricted bool

	Handler HandlerFunc
}

// RouterOption configures a [CommandRouter].
type RouterOption func(*CommandRouter)

// WithPrefix sets the command prefix. Default: [DefaultPrefix].
func WithPrefix(prefix string) RouterOption {
	return func(r *CommandRouter) { r.prefix = prefix }
}

// WithPermissions sets the checker for restricted commands. Default: allow all.
func WithPermissions(p *PermissionChecker) RouterOption {
	return func(r *CommandRouter) { r.perms = p }
}

// WithMetrics records command counts on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *CommandRouter) { r.metrics = m }
}

// WithCommandTimeout bounds each handler invocation. Default: 30s.
func WithCommandTimeout(d time.Duration) RouterOption {
	return func(r *CommandRouter) { r.timeout = d }
}

// CommandRouter dispatches prefixed chat messages to registered handlers.
type CommandRouter struct {
	messenger Messenger
	perms     *PermissionChecker
	metrics   *observe.Metrics
	timeout   time.Duration

	mu       sync.RWMutex
	prefix   string
	commands map[string]Command
	order    []string
}

// NewCommandRouter creates an empty router that replies through m.
func NewCommandRouter(m Messenger, opts ...RouterOption) *CommandRouter {
	r := &CommandRouter{
		messenger: m,
		prefix:    DefaultPrefix,
		timeout:   defaultCommandTimeout,
		commands:  make(map[string]Command),
	}
	for _, o := range opts {
		o(r)
	}
	if r.perms == nil {
		r.perms = NewPermissionChecker("")
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Register adds cmd, replacing any command of the same name.
func (r *CommandRouter) Register(cmd Command) {
	name := strings.ToLower(cmd.Name)
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Commands returns the registered commands in registration order.
func (r *CommandRouter) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// Prefix returns the current command prefix.
func (r *CommandRouter) Prefix() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix
}

// SetPrefix replaces the command prefix at runtime.
func (r *CommandRouter) SetPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefix = prefix
}

// Permissions returns the checker used for restricted commands.
func (r *CommandRouter) Permissions() *PermissionChecker {
	return r.perms
}

// Handle is the discordgo MessageCreate handler.
func (r *CommandRouter) Handle(_ *discordgo.Session, m *discordgo.MessageCreate) {
	r.Dispatch(context.Background(), m.Message)
}

// Dispatch routes msg to its command handler. Messages outside a guild,
// from bots, or without the prefix are ignored.
func (r *CommandRouter) Dispatch(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return
	}
	name, ok := r.parse(msg.Content)
	if !ok {
		return
	}

	r.mu.RLock()
	cmd, found := r.commands[name]
	r.mu.RUnlock()

	if !found {
		r.suggest(ctx, msg, name)
		return
	}

	if cmd.Restricted && !r.perms.Allowed(msg.Member) {
		slog.Info("discord: restricted command denied", "command", name, "guild_id", msg.GuildID, "user_id", msg.Author.ID)
		r.metrics.RecordCommand(ctx, name, StatusForbidden)
		RespondReply(ctx, r.messenger, msg, "You need the debug role to use this command.")
		return
	}

	slog.Debug("discord: command received", "command", name, "guild_id", msg.GuildID, "user_id", msg.Author.ID)
	status := r.run(ctx, cmd, &Request{Message: msg, Command: name})
	r.metrics.RecordCommand(ctx, name, status)
}

// run invokes the handler, converting errors and panics into the generic
// failure reply.
func (r *CommandRouter) run(ctx context.Context, cmd Command, req *Request) (status string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			RespondError(ctx, r.messenger, req.Message, fmt.Errorf("discord: panic in %q handler: %v", cmd.Name, p))
			status = StatusError
		}
	}()

	reply, err := cmd.Handler(ctx, req)
	if err != nil {
		RespondError(ctx, r.messenger, req.Message, fmt.Errorf("discord: %s: %w", cmd.Name, err))
		return StatusError
	}
	RespondReply(ctx, r.messenger, req.Message, reply.Content)
	if reply.Rejected {
		return StatusRejected
	}
	return StatusOK
}

// parse extracts the command name from a message. The whole trimmed
// message must be the prefix followed by a single word.
func (r *CommandRouter) parse(content string) (string, bool) {
	prefix := strings.ToLower(r.Prefix())
	text := strings.ToLower(strings.TrimSpace(content))
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", false
	}
	name := text[len(prefix):]
	if name == "" || strings.ContainsFunc(name, isSpace) {
		return "", false
	}
	return name, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// suggest answers near misses of a registered command and ignores
// everything else.
func (r *CommandRouter) suggest(ctx context.Context, msg *discordgo.Message, name string) {
	best, score := "", 0.0
	for _, cmd := range r.Commands() {
		if s := matchr.JaroWinkler(name, cmd.Name, false); s > score {
			best, score = cmd.Name, s
		}
	}
	if score < suggestThreshold {
		return
	}
	r.metrics.RecordCommand(ctx, best, StatusUnknown)
	RespondReply(ctx, r.messenger, msg, fmt.Sprintf("Unknown command. Did you mean `%s%s`?", r.Prefix(), best))
}

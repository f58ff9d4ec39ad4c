// Package policy provides an optional per-operation approval layer attached
// to a workflow run via context. Runs that do not embed a Policy keep the
// default "auto" behaviour, so using it is entirely opt-in.
package policy

import (
	"context"
	"strings"
)

// Execution modes recognised by the engine.
const (
	ModeAsk  = "ask"  // ask before every operation
	ModeAuto = "auto" // execute automatically (default)
	ModeDeny = "deny" // block execution
)

// AskFunc is invoked when Mode==ask. Returning true approves the operation,
// false rejects it. Implementations may mutate the policy (for example,
// switching to ModeAuto after the first approval).
type AskFunc func(
	ctx context.Context,
	operation string, // service.method
	params map[string]interface{}, // step parameters - may be nil
	p *Policy,
) bool

// Policy represents the approval settings for the current workflow run.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowList, BlockList allow coarse filtering regardless of Mode.
//   - Ask is only used when Mode==ask.
//
// A nil *Policy means "execute everything automatically".
type Policy struct {
	Mode      string   // ask / auto / deny      (default = auto)
	AllowList []string // whitelist (empty => all)
	BlockList []string // blacklist
	Ask       AskFunc  // used only when Mode==ask
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without
// AskFunc).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList. Both lists match by exact,
// case-insensitive comparison of the fully-qualified operation id
// "service.method".
func (p *Policy) IsAllowed(operation string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(operation)

	// BlockList has priority.
	for _, blocked := range p.BlockList {
		if normalized == strings.ToLower(blocked) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, allowed := range p.AllowList {
		if normalized == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}

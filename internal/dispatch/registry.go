package dispatch

import (
	"maps"
	"slices"
	"sync"

	"github.com/andrei-cloud/go_atalla/internal/hsm/logic"
)

// CommandInfo describes one supported command.
type CommandInfo struct {
	Code         string
	ResponseCode string
	Description  string
	Handler      logic.Handler
}

// Registry maps command codes to handlers.
type Registry struct {
	commands map[string]*CommandInfo
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*CommandInfo),
	}
}

// DefaultRegistry returns a registry holding every built-in command.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, info := range []*CommandInfo{
		{Code: "00", ResponseCode: "01", Description: "Echo", Handler: logic.Execute00},
		{Code: "31", ResponseCode: "41", Description: "Translate PIN block", Handler: logic.Execute31},
		{Code: "32", ResponseCode: "42", Description: "Verify PIN", Handler: logic.Execute32},
		{Code: "37", ResponseCode: "47", Description: "Change PIN", Handler: logic.Execute37},
		{Code: "5D", ResponseCode: "6D", Description: "Generate CVV", Handler: logic.Execute5D},
		{Code: "5E", ResponseCode: "6E", Description: "Verify CVV", Handler: logic.Execute5E},
		{Code: "350", ResponseCode: "450", Description: "Verify ARQC and generate ARPC", Handler: logic.Execute350},
		{Code: "352", ResponseCode: "452", Description: "EMV PIN change", Handler: logic.Execute352},
	} {
		r.Register(info)
	}

	return r
}

// Register adds or replaces a command.
func (r *Registry) Register(info *CommandInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[info.Code] = info
}

// Get retrieves a command by code.
func (r *Registry) Get(code string) (*CommandInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.commands[code]

	return info, ok
}

// List returns all registered commands sorted by code.
func (r *Registry) List() []*CommandInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*CommandInfo, 0, len(r.commands))
	for _, code := range slices.Sorted(maps.Keys(r.commands)) {
		result = append(result, r.commands[code])
	}

	return result
}

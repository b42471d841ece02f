package cluster

import (
	"context"
	"time"

	"github.com/relaygrid/relaygrid/pkg/registry"
)

// DefaultRemoteCallTimeout bounds one remote invocation end to end.
const DefaultRemoteCallTimeout = 10 * time.Second

// ResolveReply is the answer a peer gives to a resolution probe.
type ResolveReply struct {
	// Name is the resolved entry name.
	Name string `json:"name"`

	// Node is the answering node's identifier.
	Node string `json:"node"`

	// Metadata is the entry's capability description.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CallRequest is one remote invocation: function(args) against the handler
// registered under Name on the receiving node.
type CallRequest struct {
	Name     string         `json:"name"`
	Function string         `json:"function"`
	Args     map[string]any `json:"args,omitempty"`
}

// CallReply carries a successful remote invocation result.
type CallReply struct {
	Result any `json:"result"`
}

// ErrorReply is the wire form of a registry error.
type ErrorReply struct {
	Code   string `json:"code"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Transport moves resolution probes and invocations between nodes. The
// registry does not prescribe a wire protocol; anything that can answer
// "does addr hold name" and "invoke function(args) on name at addr" will
// do. The in-tree implementation is HTTP (see http.go); tests use an
// in-memory fake.
type Transport interface {
	// ResolveEntry asks the registry at addr whether it holds name.
	ResolveEntry(ctx context.Context, addr, name string) (*ResolveReply, error)

	// Call invokes function(args) on the handler registered under name at
	// addr.
	Call(ctx context.Context, addr string, req CallRequest) (any, error)
}

// remoteHandler is the local stand-in for a handler resolved on a peer:
// invocations route through the transport to the source node. It is what
// remote resolution returns and what the remote cache stores.
type remoteHandler struct {
	name    string
	node    string
	addr    string
	t       Transport
	timeout time.Duration
}

// Invoke satisfies registry.Invoker by forwarding to the source node.
func (h *remoteHandler) Invoke(ctx context.Context, function string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.t.Call(ctx, h.addr, CallRequest{Name: h.name, Function: function, Args: args})
	if err != nil {
		if registry.CodeOf(err) != "" {
			return nil, err
		}
		return nil, registry.NewRemoteCallFailedError(h.name, h.node, "transport failure", err)
	}
	return result, nil
}

// Node returns the source node holding the real handler.
func (h *remoteHandler) Node() string {
	return h.node
}

var _ registry.Invoker = (*remoteHandler)(nil)

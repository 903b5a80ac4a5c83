package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Role is the permission level a caller holds. Roles are ordered; a caller
// may use any entry whose RequiredRole is less than or equal to its own.
type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleOperator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleOperator:
		return "operator"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseRole converts a configuration string into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RoleNone, nil
	case "user":
		return RoleUser, nil
	case "operator":
		return RoleOperator, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// CatalogEntry is the common surface of tools and skills as seen by the
// catalog and the selector.
type CatalogEntry interface {
	EntryID() string
	EntryDomain() string
	EntryRole() Role
	EntryDescription() string
	Vector() []float32
	// Invocable reports whether the entry can be dispatched (tools) or is
	// prompt guidance only (skills).
	Invocable() bool
}

// ToolDescriptor describes one invocable tool exposed by a plugin.
type ToolDescriptor struct {
	ID           string              `json:"id"`
	DisplayName  string              `json:"display_name"`
	Description  string              `json:"description"`
	Domain       string              `json:"domain"`
	RequiredRole Role                `json:"required_role"`
	Schema       mcp.ToolInputSchema `json:"parameter_schema"`
	Embedding    []float32           `json:"-"`
}

func (t *ToolDescriptor) EntryID() string          { return t.ID }
func (t *ToolDescriptor) EntryDomain() string      { return t.Domain }
func (t *ToolDescriptor) EntryRole() Role          { return t.RequiredRole }
func (t *ToolDescriptor) EntryDescription() string { return t.Description }
func (t *ToolDescriptor) Vector() []float32        { return t.Embedding }
func (t *ToolDescriptor) Invocable() bool          { return true }

// SchemaJSON returns the tool's parameter schema as a JSON document, for
// validation against incoming arguments.
func (t *ToolDescriptor) SchemaJSON() (json.RawMessage, error) {
	return json.Marshal(t.Schema)
}

// SkillDescriptor describes a bundle of usage guidance. A skill is ranked
// and selected the same way as a tool but is injected as prompt text
// rather than bound as a callable.
type SkillDescriptor struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description"`
	Domain       string    `json:"domain"`
	RequiredRole Role      `json:"required_role"`
	Guidance     string    `json:"guidance"`
	Embedding    []float32 `json:"-"`
}

func (s *SkillDescriptor) EntryID() string          { return s.ID }
func (s *SkillDescriptor) EntryDomain() string      { return s.Domain }
func (s *SkillDescriptor) EntryRole() Role          { return s.RequiredRole }
func (s *SkillDescriptor) EntryDescription() string { return s.Description }
func (s *SkillDescriptor) Vector() []float32        { return s.Embedding }
func (s *SkillDescriptor) Invocable() bool          { return false }

// CallerIdentity identifies who is behind a select or invoke call in a
// multi-tenant deployment.
type CallerIdentity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SecretScope distinguishes deployment-wide credentials from per-user ones.
type SecretScope string

const (
	SecretScopeGlobal SecretScope = "global"
	SecretScopeUser   SecretScope = "user"
)

// SecretRecord is one encrypted credential owned by the credential store.
// The plaintext value exists only transiently inside the gateway, between
// decryption and dispatch.
type SecretRecord struct {
	Scope          SecretScope `json:"scope"`
	OwnerID        string      `json:"owner_id,omitempty"`
	PluginID       string      `json:"plugin_id"`
	Key            string      `json:"key"`
	EncryptedValue []byte      `json:"-"`
}

// CallStatus is the terminal state of one gateway invocation.
type CallStatus string

const (
	CallStatusOK          CallStatus = "ok"
	CallStatusCached      CallStatus = "cached"
	CallStatusOffloaded   CallStatus = "offloaded"
	CallStatusRateLimited CallStatus = "rate_limited"
	CallStatusDenied      CallStatus = "permission_denied"
	CallStatusBadRequest  CallStatus = "bad_request"
	CallStatusFailed      CallStatus = "transport_failure"
)

// CallRecord is what the gateway emits to the external auditor after every
// invocation. InjectedKeys lists the argument names that received secret
// values; the values themselves are never recorded.
type CallRecord struct {
	ID           string        `json:"id"`
	ToolID       string        `json:"tool_id"`
	CallerID     string        `json:"caller_id"`
	Status       CallStatus    `json:"status"`
	Latency      time.Duration `json:"latency"`
	InjectedKeys []string      `json:"injected_keys,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
}

// Package audit implements the append-only, hash-linked audit log.
//
// Each entry's hash covers its own fields and the hash of the entry before
// it, so rewriting any stored row breaks verification at that row. The head
// of the chain lives in storage and is read and advanced under a row lock in
// the same transaction as the insert; concurrent appenders queue on it
// instead of forking the chain.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"procurement/internal/store"
	"procurement/models"
)

// Genesis is the prev_hash of the first entry.
const Genesis = "GENESIS"

// Record is what a component asks to be remembered.
type Record struct {
	ActorID    int64
	ActorRole  string
	Action     string
	EntityType string
	EntityID   int64
	Details    map[string]any
}

type Chain struct {
	store store.Store
	now   func() time.Time
}

func NewChain(st store.Store) *Chain {
	return &Chain{store: st, now: time.Now}
}

// WithClock replaces the clock used for entry timestamps.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.now = now
	return c
}

// Append writes one entry at the head of the chain.
func (c *Chain) Append(ctx context.Context, r Record) (*models.AuditEntry, error) {
	if r.Action == "" || r.EntityType == "" {
		return nil, fmt.Errorf("audit: action and entity type are required")
	}
	details, err := canonicalDetails(r.Details)
	if err != nil {
		return nil, err
	}

	var entry *models.AuditEntry
	err = c.store.InTx(ctx, func(tx store.Tx) error {
		prev, err := tx.LockChainHead(ctx)
		if err != nil {
			return fmt.Errorf("audit: lock chain head: %w", err)
		}
		if prev == "" {
			prev = Genesis
		}
		e := &models.AuditEntry{
			EntryID:    uuid.NewString(),
			ActorID:    r.ActorID,
			ActorRole:  r.ActorRole,
			Action:     r.Action,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Details:    details,
			PrevHash:   prev,
			CreatedAt:  c.now().UTC().Truncate(time.Microsecond),
		}
		if e.EntryHash, err = Hash(*e, prev); err != nil {
			return err
		}
		if err := tx.InsertAuditEntry(ctx, e); err != nil {
			return fmt.Errorf("audit: insert entry: %w", err)
		}
		if err := tx.SetChainHead(ctx, e.EntryHash); err != nil {
			return fmt.Errorf("audit: advance chain head: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func canonicalDetails(details map[string]any) (json.RawMessage, error) {
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal details: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize details: %w", err)
	}
	return canon, nil
}

type hashPayload struct {
	ActorID    int64           `json:"actor_id"`
	ActorRole  string          `json:"actor_role"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
	PrevHash   string          `json:"prev_hash"`
	Timestamp  string          `json:"timestamp"`
}

// Hash computes the entry hash of e chained onto prev. Details and the
// envelope are canonicalized (RFC 8785), so a JSONB round trip that
// reorders keys does not change the hash.
func Hash(e models.AuditEntry, prev string) (string, error) {
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	raw, err := json.Marshal(hashPayload{
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    details,
		PrevHash:   prev,
		Timestamp:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("audit: marshal payload: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Report is the outcome of a chain verification.
type Report struct {
	Valid      bool   `json:"valid"`
	Entries    int    `json:"entries"`
	Head       string `json:"head"`
	TamperedID int64  `json:"tamperedId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Entries returns the stored chain in insertion order.
func (c *Chain) Entries(ctx context.Context) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.ListAuditEntries(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	return entries, nil
}

// Verify walks the stored chain from genesis.
func (c *Chain) Verify(ctx context.Context) (Report, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return Report{}, err
	}
	return VerifyEntries(entries), nil
}

// VerifyEntries checks entries in insertion order and reports the first one
// whose stored link or hash does not match its recomputation.
func VerifyEntries(entries []models.AuditEntry) Report {
	prev := Genesis
	for i, e := range entries {
		if e.PrevHash != prev {
			return Report{Entries: i, Head: prev, TamperedID: e.ID, Reason: "prev_hash does not match preceding entry"}
		}
		h, err := Hash(e, prev)
		if err != nil || h != e.EntryHash {
			return Report{Entries: i, Head: prev, TamperedID: e.ID, Reason: "entry_hash does not match contents"}
		}
		prev = e.EntryHash
	}
	return Report{Valid: true, Entries: len(entries), Head: prev}
}

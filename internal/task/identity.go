package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-derived digests. The version suffix allows a
// future change of the field set; bump mapping.SchemaVersion alongside it.
const (
	DomainID   = "notesync/id/v1"
	DomainHash = "notesync/hash/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data), hex encoded.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateID derives the task's identity from its content.
//
// With provenance the id covers path, title, due/start/scheduled, sorted tags
// and priority. Without provenance it falls back to (title, list).
// Line number and original text are never part of the id.
func GenerateID(t Task) string {
	var obj map[string]any
	if t.Source == nil || t.Source.Path == "" {
		obj = map[string]any{
			"title": t.Title,
			"list":  t.List,
		}
	} else {
		obj = map[string]any{
			"path":      t.Source.Path,
			"title":     t.Title,
			"due":       FormatDate(t.Due),
			"start":     FormatDate(t.Start),
			"scheduled": FormatDate(t.Scheduled),
			"tags":      t.SortedTags(),
			"priority":  int(t.Priority),
		}
	}
	return mustDigest(DomainID, obj)
}

// GenerateHash derives the change-detection hash of a task. It covers the
// mutable fields that can trigger a push or writeback and is never used
// for identity.
func GenerateHash(t Task) string {
	obj := map[string]any{
		"title":        t.Title,
		"completed":    t.Completed,
		"priority":     int(t.Priority),
		"due":          FormatDate(t.Due),
		"start":        FormatDate(t.Start),
		"scheduled":    FormatDate(t.Scheduled),
		"completed_on": FormatDate(t.CompletedOn),
		"list":         t.List,
		"tags":         t.SortedTags(),
	}
	return mustDigest(DomainHash, obj)
}

// mustDigest panics only on unsupported types, which the fixed field sets
// above never contain.
func mustDigest(domain string, obj map[string]any) string {
	data, err := MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("task digest: %v", err))
	}
	return hashWithDomain(domain, data)
}

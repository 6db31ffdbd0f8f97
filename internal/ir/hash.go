package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDocument prefixes document hashes. The version suffix allows the
// hashed field set to change without colliding with older hashes.
const DomainDocument = "activerules/document/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalMap returns the document as a map suitable for MarshalCanonical.
// Enum fields use their canonical names; an absent parent is omitted.
func (a ActiveRule) CanonicalMap() map[string]any {
	params := make(map[string]any, len(a.Params))
	for k, v := range a.Params {
		params[k] = v
	}
	m := map[string]any{
		"key":         a.Key.String(),
		"rule_key":    a.RuleKey.String(),
		"profile_key": string(a.ProfileKey),
		"severity":    a.Severity.String(),
		"inheritance": a.Inheritance.String(),
		"params":      params,
	}
	if a.ParentKey != nil {
		m["parent_key"] = a.ParentKey.String()
	}
	return m
}

// DocumentHash is the content hash of a document. Two documents with equal
// content hash to the same value regardless of param insertion order.
func DocumentHash(a ActiveRule) (string, error) {
	data, err := MarshalCanonical(a.CanonicalMap())
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, data), nil
}

// MustDocumentHash is like DocumentHash but panics on error.
// Use only in tests or when the document is known to be valid.
func MustDocumentHash(a ActiveRule) string {
	h, err := DocumentHash(a)
	if err != nil {
		panic(err)
	}
	return h
}

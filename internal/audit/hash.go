package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// canonical serializes every field except the hash itself in a fixed
// order with locale-independent formatting, so the digest is stable
// across processes and restarts.
func canonical(r Record) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(r.Sequence, 10))
	b.WriteByte('\n')
	b.WriteString(r.Type)
	b.WriteByte('\n')
	b.WriteString(r.Subtype)
	b.WriteByte('\n')
	b.WriteString(string(r.Severity))
	b.WriteByte('\n')
	b.WriteString(r.Actor.UserID)
	b.WriteByte('\n')
	b.WriteString(r.Actor.SessionID)
	b.WriteByte('\n')
	b.WriteString(r.Actor.IP)
	b.WriteByte('\n')
	b.WriteString(r.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('\n')
	b.WriteString(canonicalPayload(r.Payload))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatBool(r.Security))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatBool(r.Compliance))
	b.WriteByte('\n')
	b.WriteString(string(r.Risk))
	b.WriteByte('\n')
	b.WriteString(r.CorrelationID)
	b.WriteByte('\n')
	b.WriteString(r.Signature)
	return b.String()
}

// canonicalPayload renders payload entries as key=value pairs in sorted
// key order. Unit separator (0x1f) keeps adjacent pairs unambiguous.
func canonicalPayload(payload map[string]string) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(payload[k])
	}
	return b.String()
}

// computeHash digests the canonical record form concatenated with the
// previous record's hash, forming the chain link.
func computeHash(r Record) string {
	sum := sha256.Sum256([]byte(canonical(r) + "\n" + r.PrevHash))
	return hex.EncodeToString(sum[:])
}

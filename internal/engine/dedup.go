package engine

import "noisechat/internal/api"

type FingerprintKind int

const (
	KindText FingerprintKind = iota
	KindOutgoing
	KindFile
	KindNotice
)

// Fingerprint is the equality key used to decide whether a message is
// already on screen. It is a content heuristic, not an identity: two
// different messages with the same text from the same sender collapse.
type Fingerprint struct {
	Kind FingerprintKind
	Key  string
}

// FingerprintOf applies the display identity rule: files by resolved URL,
// outgoing text by content alone, system notices by text, everything else
// by content, sender and direction.
func FingerprintOf(msg api.Message) Fingerprint {
	if msg.Type.IsSystem() {
		return Fingerprint{Kind: KindNotice, Key: msg.Content}
	}
	if msg.FileInfo != nil {
		if resolved := msg.FileInfo.ResolvedURL(); resolved != "" {
			return Fingerprint{Kind: KindFile, Key: resolved}
		}
	}
	if msg.Type == api.TypeOutgoing {
		return Fingerprint{Kind: KindOutgoing, Key: msg.Content}
	}
	return Fingerprint{Kind: KindText, Key: msg.Content + "\x00" + msg.Sender + "\x00" + msg.Type.Direction()}
}

// Cache is the set of fingerprints displayed in the current room session.
// Entries are only ever added; Reset drops everything on a room switch.
type Cache struct {
	seen map[Fingerprint]struct{}
}

func NewCache() *Cache {
	return &Cache{seen: map[Fingerprint]struct{}{}}
}

// ShouldDisplay records msg and returns true the first time its
// fingerprint is seen. A false result leaves the cache untouched.
func (c *Cache) ShouldDisplay(msg api.Message) bool {
	return c.admit(FingerprintOf(msg))
}

func (c *Cache) ShouldDisplayNotice(text string) bool {
	return c.admit(Fingerprint{Kind: KindNotice, Key: text})
}

func (c *Cache) contains(fp Fingerprint) bool {
	_, ok := c.seen[fp]
	return ok
}

func (c *Cache) admit(fp Fingerprint) bool {
	if _, ok := c.seen[fp]; ok {
		return false
	}
	c.seen[fp] = struct{}{}
	return true
}

func (c *Cache) Reset() {
	c.seen = map[Fingerprint]struct{}{}
}

func (c *Cache) Len() int { return len(c.seen) }

package index

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/activerules/internal/ir"
)

const (
	prefixDoc     = 'd'
	prefixRule    = 'r'
	prefixProfile = 'p'
	sep           = 0x00
)

// storedDoc is the msgpack form of a document. Enums are stored by name so
// the on-disk form does not depend on enum ordinals. Rule and profile keys
// are derived from Key on decode.
type storedDoc struct {
	Key         string            `msgpack:"key"`
	Severity    string            `msgpack:"severity"`
	Inheritance string            `msgpack:"inheritance"`
	ParentKey   string            `msgpack:"parent_key,omitempty"`
	Params      map[string]string `msgpack:"params"`
	Hash        string            `msgpack:"hash"`
}

func encodeDoc(doc ir.ActiveRule, hash string) ([]byte, error) {
	sd := storedDoc{
		Key:         doc.Key.String(),
		Severity:    doc.Severity.String(),
		Inheritance: doc.Inheritance.String(),
		Params:      doc.Params,
		Hash:        hash,
	}
	if doc.ParentKey != nil {
		sd.ParentKey = doc.ParentKey.String()
	}
	data, err := msgpack.Marshal(&sd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.Key, err)
	}
	return data, nil
}

func decodeStored(data []byte) (storedDoc, error) {
	var sd storedDoc
	if err := msgpack.Unmarshal(data, &sd); err != nil {
		return storedDoc{}, fmt.Errorf("decode document: %w", err)
	}
	return sd, nil
}

// decodeDoc parses a stored document back through the ir parsers, so a
// corrupt or foreign value fails instead of yielding a partial document.
func decodeDoc(data []byte) (ir.ActiveRule, error) {
	sd, err := decodeStored(data)
	if err != nil {
		return ir.ActiveRule{}, err
	}

	key, err := ir.ParseActiveRuleKey(sd.Key)
	if err != nil {
		return ir.ActiveRule{}, fmt.Errorf("decode document: %w", err)
	}
	severity, err := ir.ParseSeverity(sd.Severity)
	if err != nil {
		return ir.ActiveRule{}, fmt.Errorf("decode %s: %w", key, err)
	}
	inheritance, err := ir.ParseInheritance(sd.Inheritance)
	if err != nil {
		return ir.ActiveRule{}, fmt.Errorf("decode %s: %w", key, err)
	}

	doc := ir.ActiveRule{
		Key:         key,
		RuleKey:     key.Rule,
		ProfileKey:  key.Profile,
		Severity:    severity,
		Inheritance: inheritance,
		Params:      sd.Params,
	}
	if doc.Params == nil {
		doc.Params = map[string]string{}
	}
	if sd.ParentKey != "" {
		parent, err := ir.ParseActiveRuleKey(sd.ParentKey)
		if err != nil {
			return ir.ActiveRule{}, fmt.Errorf("decode %s: parent: %w", key, err)
		}
		doc.ParentKey = &parent
	}
	return doc, nil
}

func docKey(key ir.ActiveRuleKey) []byte {
	return joinKey(prefixDoc, key.String())
}

func ruleKey(key ir.ActiveRuleKey) []byte {
	return joinKey(prefixRule, key.Rule.String(), key.String())
}

func profileKey(key ir.ActiveRuleKey) []byte {
	return joinKey(prefixProfile, string(key.Profile), key.String())
}

func docPrefix() []byte {
	return []byte{prefixDoc, sep}
}

func rulePrefix(rule ir.RuleKey) []byte {
	return append(joinKey(prefixRule, rule.String()), sep)
}

func profilePrefix(profile ir.ProfileKey) []byte {
	return append(joinKey(prefixProfile, string(profile)), sep)
}

func joinKey(prefix byte, parts ...string) []byte {
	var b bytes.Buffer
	b.WriteByte(prefix)
	for _, p := range parts {
		b.WriteByte(sep)
		b.WriteString(p)
	}
	return b.Bytes()
}

// postingTarget extracts the active rule key from a rule or profile
// posting key: the text after the last separator.
func postingTarget(k []byte) (ir.ActiveRuleKey, error) {
	i := bytes.LastIndexByte(k, sep)
	if i < 0 {
		return ir.ActiveRuleKey{}, fmt.Errorf("%w: posting key %q", ir.ErrMalformedKey, k)
	}
	return ir.ParseActiveRuleKey(string(k[i+1:]))
}

// docTarget extracts the active rule key from a document key.
func docTarget(k []byte) (ir.ActiveRuleKey, error) {
	return ir.ParseActiveRuleKey(string(bytes.TrimPrefix(k, docPrefix())))
}

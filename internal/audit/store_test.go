package audit

import (
	"encoding/json"
	"testing"
)

func TestDigestArgumentsOrderIndependent(t *testing.T) {
	a := map[string]json.RawMessage{
		"title":    json.RawMessage(`"Fix login"`),
		"priority": json.RawMessage(`"high"`),
	}
	b := map[string]json.RawMessage{
		"priority": json.RawMessage(`"high"`),
		"title":    json.RawMessage(`"Fix login"`),
	}
	if DigestArguments(a) != DigestArguments(b) {
		t.Fatal("equivalent argument sets hashed differently")
	}
}

func TestDigestArgumentsDistinguishesValues(t *testing.T) {
	a := map[string]json.RawMessage{"title": json.RawMessage(`"one"`)}
	b := map[string]json.RawMessage{"title": json.RawMessage(`"two"`)}
	if DigestArguments(a) == DigestArguments(b) {
		t.Fatal("different values produced the same digest")
	}
}

func TestDigestArgumentsKeyValueBoundary(t *testing.T) {
	a := map[string]json.RawMessage{"ab": json.RawMessage(`c`)}
	b := map[string]json.RawMessage{"a": json.RawMessage(`bc`)}
	if DigestArguments(a) == DigestArguments(b) {
		t.Fatal("key/value boundary not encoded in digest")
	}
}

func TestDigestArgumentsEmpty(t *testing.T) {
	if DigestArguments(nil) != DigestArguments(map[string]json.RawMessage{}) {
		t.Fatal("nil and empty maps hashed differently")
	}
}

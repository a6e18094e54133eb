package tool

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGetReturnsDefaultWhenAbsent(t *testing.T) {
	bag := NewParameterBag()
	got, err := Get(bag, "query", "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
}

func TestGetCoercesRawJSON(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("title", json.RawMessage(`"Fix login"`))
	bag.Add("id", json.RawMessage(`42`))
	bag.Add("active", json.RawMessage(`true`))
	bag.Add("score", json.RawMessage(`2.5`))

	title, err := Get(bag, "title", "")
	if err != nil || title != "Fix login" {
		t.Fatalf("title = %q, err = %v", title, err)
	}
	id, err := Get(bag, "id", 0)
	if err != nil || id != 42 {
		t.Fatalf("id = %d, err = %v", id, err)
	}
	active, err := Get(bag, "active", false)
	if err != nil || !active {
		t.Fatalf("active = %v, err = %v", active, err)
	}
	score, err := Get(bag, "score", 0.0)
	if err != nil || score != 2.5 {
		t.Fatalf("score = %v, err = %v", score, err)
	}
}

func TestGetTypeMismatch(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("id", json.RawMessage(`"not a number"`))

	_, err := Get(bag, "id", 0)
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if mismatch.Key != "id" {
		t.Fatalf("mismatch key = %q, want id", mismatch.Key)
	}
}

func TestGetRequiredMissing(t *testing.T) {
	bag := NewParameterBag()
	_, err := GetRequired[string](bag, "title")
	var missing *MissingParameterError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	if missing.Key != "title" {
		t.Fatalf("missing key = %q, want title", missing.Key)
	}
}

func TestGetRequiredPresent(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("title", "Deploy v2")
	got, err := GetRequired[string](bag, "title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Deploy v2" {
		t.Fatalf("got %q", got)
	}
}

func TestTryGet(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("priority", json.RawMessage(`"high"`))

	if v, ok := TryGet[string](bag, "priority"); !ok || v != "high" {
		t.Fatalf("TryGet priority = %q, %v", v, ok)
	}
	if _, ok := TryGet[string](bag, "missing"); ok {
		t.Fatal("TryGet reported a missing key as present")
	}
	if _, ok := TryGet[int](bag, "priority"); ok {
		t.Fatal("TryGet coerced a string to int")
	}
}

func TestCoerceFloatToIntegralInt(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("id", float64(7))
	bag.Add("fraction", float64(7.5))

	id, err := GetRequired[int](bag, "id")
	if err != nil || id != 7 {
		t.Fatalf("id = %d, err = %v", id, err)
	}
	if _, err := GetRequired[int](bag, "fraction"); err == nil {
		t.Fatal("expected error coercing 7.5 to int")
	}
}

func TestCoerceIntToFloat(t *testing.T) {
	bag := NewParameterBag()
	bag.Add("weight", 3)
	w, err := GetRequired[float64](bag, "weight")
	if err != nil || w != 3.0 {
		t.Fatalf("weight = %v, err = %v", w, err)
	}
}

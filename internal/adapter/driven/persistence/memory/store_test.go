package memory

import "testing"

func TestStore(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("k"); ok {
		t.Error("Get on empty store found a value")
	}
	if err := s.Set("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.Get("k"); !ok || v != "v1" {
		t.Errorf("Get() = %q, %v", v, ok)
	}
	if err := s.Set("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("k"); v != "v2" {
		t.Errorf("Get() after overwrite = %q", v)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("k"); ok {
		t.Error("value survived Delete")
	}
}

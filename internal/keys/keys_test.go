package keys

import "testing"

func TestAllIsUniqueAndOrdered(t *testing.T) {
	all := All()
	seen := make(map[string]bool)
	for i, k := range all {
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
		if Index(k) != i {
			t.Errorf("Index(%q) = %d, want %d", k, Index(k), i)
		}
	}
	last := controllerKeys[len(controllerKeys)-1]
	if all[0] != "0" || all[len(all)-1] != last {
		t.Errorf("unexpected order: first=%q last=%q", all[0], all[len(all)-1])
	}
}

func TestValid(t *testing.T) {
	for _, k := range []string{"w", "space", "mouse1", "kp_5", "\\"} {
		if !Valid(k) {
			t.Errorf("Valid(%q) = false", k)
		}
	}
	for _, k := range []string{"", "W", "jump", "f13"} {
		if Valid(k) {
			t.Errorf("Valid(%q) = true", k)
		}
	}
}

func TestControllerKeysComeLast(t *testing.T) {
	all := All()
	tail := all[len(all)-len(controllerKeys):]
	for i, k := range controllerKeys {
		if tail[i] != k {
			t.Errorf("key %d from the end = %q, want %q", len(controllerKeys)-i, tail[i], k)
		}
	}
	if Index("mwheeldown") != len(all)-len(controllerKeys)-1 {
		t.Errorf("mwheeldown at %d", Index("mwheeldown"))
	}
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0] = "changed"
	if All()[0] != "0" {
		t.Error("All() exposed internal slice")
	}
}

func TestFileNameRoundTrip(t *testing.T) {
	for _, k := range All() {
		fn := FileName(k)
		for _, c := range fn {
			if c == '/' || c == '\\' {
				t.Fatalf("FileName(%q) = %q is not path-safe", k, fn)
			}
		}
		back, ok := FromFileName(fn)
		if !ok || back != k {
			t.Errorf("FromFileName(%q) = %q, %v; want %q", fn, back, ok, k)
		}
	}
	if _, ok := FromFileName("/"); ok {
		t.Error("raw slash accepted as a file name")
	}
}

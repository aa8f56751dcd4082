package schedule

import (
	"reflect"
	"testing"
)

func TestDue_Interval(t *testing.T) {
	tests := []struct {
		name     string
		interval uint32
		ticks    int
		want     []int // ticks (1-based) on which the entry is due
	}{
		{"every tick", 0, 3, []int{1, 2, 3}},
		{"every other tick", 1, 6, []int{2, 4, 6}},
		{"every fifth tick", 4, 12, []int{5, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Set("job", tt.interval)

			var got []int
			for tick := 1; tick <= tt.ticks; tick++ {
				if s.Due("job") {
					got = append(got, tick)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("due on %v, want %v", got, tt.want)
			}
			if runs := s.Runs("job"); runs != uint64(len(tt.want)) {
				t.Errorf("Runs = %d, want %d", runs, len(tt.want))
			}
		})
	}
}

func TestDue_UnknownKey(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		if s.Due("missing") {
			t.Fatal("unknown key reported due")
		}
	}
	if s.Runs("missing") != 0 {
		t.Error("unknown key has runs")
	}
}

func TestSet_ResetsCounter(t *testing.T) {
	s := New()
	s.Set("job", 2)
	s.Due("job")
	s.Due("job")

	// Replacing the entry restarts the count; the third call would
	// otherwise have been due.
	s.Set("job", 2)
	if s.Due("job") {
		t.Error("counter should restart after Set")
	}
	s.Due("job")
	if !s.Due("job") {
		t.Error("entry should be due after a full interval")
	}
}

func TestRemove(t *testing.T) {
	s := New()
	s.Set("qotd", 0)
	s.Set("echo", 0)
	s.Remove("qotd")
	s.Remove("never-added")

	if s.Due("qotd") {
		t.Error("removed key reported due")
	}
	if got, want := s.Keys(), []string{"echo"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}

func TestKeys_Sorted(t *testing.T) {
	s := New()
	for _, k := range []string{"qotd", "counter", "echo"} {
		s.Set(k, 1)
	}
	if got, want := s.Keys(), []string{"counter", "echo", "qotd"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}

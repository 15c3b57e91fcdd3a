package domain

import "testing"

func TestKeyOrUnknown(t *testing.T) {
	if got := Key("").OrUnknown(); got != UnknownKey {
		t.Fatalf("expected %q, got %q", UnknownKey, got)
	}
	if got := Key("  ").OrUnknown(); got != UnknownKey {
		t.Fatalf("expected %q for blank key, got %q", UnknownKey, got)
	}
	if got := Key("10.0.0.1").OrUnknown(); got != "10.0.0.1" {
		t.Fatalf("expected key to be kept, got %q", got)
	}
}

func TestStatsEventRouteLabel(t *testing.T) {
	cases := []struct {
		ev   StatsEvent
		want string
	}{
		{StatsEvent{Route: "GET /employees/{id}", Method: "GET", Path: "/employees/7"}, "GET /employees/{id}"},
		{StatsEvent{Method: "GET", Path: "/"}, "GET /"},
		{StatsEvent{Path: "/"}, "/"},
		{StatsEvent{}, ""},
	}
	for _, c := range cases {
		if got := c.ev.RouteLabel(); got != c.want {
			t.Errorf("RouteLabel(%+v) = %q, want %q", c.ev, got, c.want)
		}
	}
}

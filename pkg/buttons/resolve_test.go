package buttons

import (
	"strings"
	"testing"
)

func TestResolveDecisionTable(t *testing.T) {
	cases := []struct {
		action   Action
		hasRole  bool
		mutation Mutation
		result   bool
		message  string
	}{
		{ActionAssign, true, MutationNone, true, "You already have the role <@&9>."},
		{ActionAssign, false, MutationAdd, true, "Assigned role <@&9>."},
		{ActionRemove, true, MutationRemove, false, "Removed role <@&9>."},
		{ActionRemove, false, MutationNone, false, "You already don't have the role <@&9>."},
		{ActionToggle, true, MutationRemove, false, "Removed role <@&9>."},
		{ActionToggle, false, MutationAdd, true, "Assigned role <@&9>."},
	}
	for _, tc := range cases {
		d := Resolve(tc.action, tc.hasRole)
		if d.Mutation != tc.mutation {
			t.Errorf("%s/%v: mutation %s, want %s", tc.action, tc.hasRole, d.Mutation, tc.mutation)
		}
		if d.ShouldMutate() != (tc.mutation != MutationNone) {
			t.Errorf("%s/%v: ShouldMutate inconsistent", tc.action, tc.hasRole)
		}
		if d.ResultingHasRole != tc.result {
			t.Errorf("%s/%v: resulting %v, want %v", tc.action, tc.hasRole, d.ResultingHasRole, tc.result)
		}
		if got := d.Message("9"); got != tc.message {
			t.Errorf("%s/%v: message %q, want %q", tc.action, tc.hasRole, got, tc.message)
		}
	}
}

func TestResolveUnknownActionNeverMutates(t *testing.T) {
	for _, has := range []bool{true, false} {
		if d := Resolve(Action(7), has); d.ShouldMutate() || d.ResultingHasRole != has {
			t.Fatalf("unexpected decision %+v", d)
		}
	}
}

func TestVerifyOrigin(t *testing.T) {
	rec := Record{ID: "b", RoleID: "r", Origin: Origin{GuildID: "g", ChannelID: "c", MessageID: "m"}}

	if got := VerifyOrigin(rec.Origin, rec); len(got) != 0 {
		t.Fatalf("expected no mismatches, got %v", got)
	}

	single := map[string]Origin{
		"guild":   {GuildID: "x", ChannelID: "c", MessageID: "m"},
		"channel": {GuildID: "g", ChannelID: "x", MessageID: "m"},
		"message": {GuildID: "g", ChannelID: "c", MessageID: "x"},
	}
	for field, press := range single {
		got := VerifyOrigin(press, rec)
		if len(got) != 1 {
			t.Fatalf("%s: expected one mismatch, got %v", field, got)
		}
		if !strings.Contains(got[0], field+" ID") {
			t.Fatalf("%s: mismatch does not name the field: %q", field, got[0])
		}
	}

	all := VerifyOrigin(Origin{}, rec)
	if len(all) != 3 {
		t.Fatalf("expected three mismatches, got %v", all)
	}
	if !strings.Contains(all[0], "(None)") {
		t.Fatalf("empty press guild should render as None: %q", all[0])
	}
}

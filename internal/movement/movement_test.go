package movement

import (
	"testing"
	"time"

	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
)

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindAttack, KindRaid, KindSiege, KindScout, KindReinforce, KindReturn} {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("pillage"); !errors.HasCode(err, errors.ErrCodeValidation) {
		t.Errorf("ParseKind(pillage) error = %v, want validation error", err)
	}
}

func TestKind_Offensive(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindAttack, true},
		{KindRaid, true},
		{KindSiege, true},
		{KindScout, true},
		{KindReinforce, false},
		{KindReturn, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Offensive(); got != tt.want {
			t.Errorf("%s.Offensive() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestValidateSubmission(t *testing.T) {
	catalog := units.DefaultCatalog()

	tests := []struct {
		name    string
		sub     Submission
		wantErr bool
	}{
		{name: "Attack with catapult targets", sub: Submission{Kind: KindAttack, Units: units.Counts{"axeman": 10, "catapult": 4}, CatapultTargets: []string{"palace"}}},
		{name: "Attack targets without catapults", sub: Submission{Kind: KindAttack, Units: units.Counts{"axeman": 10}, CatapultTargets: []string{"palace"}}, wantErr: true},
		{name: "Too many targets", sub: Submission{Kind: KindAttack, Units: units.Counts{"catapult": 4}, CatapultTargets: []string{"a", "b", "c"}}, wantErr: true},
		{name: "Raid with targets", sub: Submission{Kind: KindRaid, Units: units.Counts{"catapult": 4}, CatapultTargets: []string{"palace"}}, wantErr: true},
		{name: "Siege without engines", sub: Submission{Kind: KindSiege, Units: units.Counts{"axeman": 4}}, wantErr: true},
		{name: "Siege with rams", sub: Submission{Kind: KindSiege, Units: units.Counts{"ram": 4}}},
		{name: "Scout only scouts", sub: Submission{Kind: KindScout, Units: units.Counts{"scout": 3}}},
		{name: "Scout with axemen", sub: Submission{Kind: KindScout, Units: units.Counts{"scout": 3, "axeman": 1}}, wantErr: true},
		{name: "Reinforce", sub: Submission{Kind: KindReinforce, Units: units.Counts{"spearman": 100}}},
		{name: "Client return", sub: Submission{Kind: KindReturn, Units: units.Counts{"spearman": 1}}, wantErr: true},
		{name: "Negative units", sub: Submission{Kind: KindAttack, Units: units.Counts{"axeman": -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmission(tt.sub, catalog)
			if tt.wantErr && err == nil {
				t.Error("ValidateSubmission() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSubmission() unexpected error = %v", err)
			}
		})
	}
}

func TestTargetSpec_Target(t *testing.T) {
	id := uint(7)
	x, y := 3, -4

	got, err := TargetSpec{Type: TargetTypeVillage, VillageID: &id}.Target()
	if err != nil || got.(VillageTarget).VillageID != 7 {
		t.Fatalf("village target = %v, %v", got, err)
	}

	got, err = TargetSpec{Type: TargetTypeCoords, X: &x, Y: &y}.Target()
	if err != nil {
		t.Fatalf("coords target error = %v", err)
	}
	if c := got.(CoordsTarget); c.X != 3 || c.Y != -4 || c.VillageID != nil {
		t.Errorf("coords target = %+v", c)
	}

	bad := []TargetSpec{
		{Type: TargetTypeVillage},
		{Type: TargetTypeVillage, VillageID: &id, X: &x},
		{Type: TargetTypeCoords, X: &x},
		{Type: "region"},
	}
	for _, spec := range bad {
		if _, err := spec.Target(); err == nil {
			t.Errorf("Target(%+v) expected error", spec)
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusEnRoute, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusEnRoute, StatusResolved, true},
		{StatusEnRoute, StatusCancelled, true},
		{StatusResolved, StatusCancelled, false},
		{StatusReturning, StatusDone, true},
		{StatusDone, StatusReturning, false},
		{StatusScheduled, StatusResolved, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if _, err := Transition(StatusResolved, StatusCancelled); !errors.HasCode(err, errors.ErrCodeInvalidTransition) {
		t.Errorf("Transition() error = %v, want invalid transition", err)
	}
}

func TestDistanceAndTravel(t *testing.T) {
	if d := Distance(Point{0, 0}, Point{3, 4}, 0); d != 5 {
		t.Errorf("Distance() = %v, want 5", d)
	}
	if d := Distance(Point{0, 0}, Point{99, 0}, 100); d != 1 {
		t.Errorf("wrapped Distance() = %v, want 1", d)
	}

	// 10 tiles at 5 tiles/h = 2h
	if got := TravelDuration(10, 5, 1); got != 2*time.Hour {
		t.Errorf("TravelDuration() = %v, want 2h", got)
	}
	if got := TravelDuration(10, 5, 2); got != time.Hour {
		t.Errorf("TravelDuration(speed x2) = %v, want 1h", got)
	}
	if got := TravelDuration(0, 5, 1); got != time.Second {
		t.Errorf("TravelDuration(0) = %v, want 1s", got)
	}
}

func TestPrecisionWindow(t *testing.T) {
	cfg := DefaultPrecision()

	if got := cfg.Window(10, 0); got != 5*time.Second {
		t.Errorf("Window(level 0) = %v, want 5s", got)
	}
	if got := cfg.Window(10, 20); got != 100*time.Millisecond {
		t.Errorf("Window(level 20) = %v, want 100ms", got)
	}
	if near, far := cfg.Window(10, 10), cfg.Window(120, 10); far <= near {
		t.Errorf("far window %v should be coarser than near window %v", far, near)
	}
}

func TestQuantizeArrival(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := QuantizeArrival(base.Add(250*time.Millisecond), time.Second); !got.Equal(base) {
		t.Errorf("QuantizeArrival(+250ms) = %v, want %v", got, base)
	}
	if got := QuantizeArrival(base.Add(700*time.Millisecond), time.Second); !got.Equal(base.Add(time.Second)) {
		t.Errorf("QuantizeArrival(+700ms) = %v, want %v", got, base.Add(time.Second))
	}
}

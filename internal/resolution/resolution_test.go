package resolution

import "testing"

func TestLadderOrder(t *testing.T) {
	if len(Ladder) == 0 {
		t.Fatal("Expected a non-empty ladder")
	}
	for i := 1; i < len(Ladder); i++ {
		if Ladder[i].Height <= Ladder[i-1].Height {
			t.Errorf("Expected ladder ordered by height, %s before %s", Ladder[i-1].Name, Ladder[i].Name)
		}
		if Ladder[i].Bandwidth <= Ladder[i-1].Bandwidth {
			t.Errorf("Expected bandwidth increasing with quality, %s before %s", Ladder[i-1].Name, Ladder[i].Name)
		}
	}
}

func TestLookup(t *testing.T) {
	tier, err := Lookup("720p")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if tier.Width != 1280 || tier.Height != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", tier.Width, tier.Height)
	}
	if tier.Bitrate != "900k" {
		t.Errorf("Expected bitrate 900k, got %s", tier.Bitrate)
	}

	if _, err := Lookup("4320p"); err == nil {
		t.Error("Expected error for unknown tier")
	}
}

func TestValid(t *testing.T) {
	for _, name := range Names() {
		if !Valid(name) {
			t.Errorf("Expected %s valid", name)
		}
	}
	if Valid("potato") {
		t.Error("Expected potato invalid")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != len(Ladder) {
		t.Fatalf("Expected %d names, got %d", len(Ladder), len(names))
	}
	if names[0] != "240p" {
		t.Errorf("Expected 240p first, got %s", names[0])
	}
}

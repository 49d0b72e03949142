package domain

import (
	"encoding/json"
	"testing"
)

func TestHashRepositoryURL(t *testing.T) {
	// md5 of the exact URL string; agents and the service must agree on it.
	got := HashRepositoryURL("https://github.com/IBM/deployment-tracker")
	if len(got) != 32 {
		t.Fatalf("expected 32 hex characters, got %q", got)
	}
	if got != HashRepositoryURL("https://github.com/IBM/deployment-tracker") {
		t.Fatal("expected deterministic hash")
	}
	if got == HashRepositoryURL("https://github.com/IBM/other") {
		t.Fatal("expected distinct hashes for distinct URLs")
	}
}

func TestDeployHistogramAddAndTotal(t *testing.T) {
	h := make(DeployHistogram)
	h.Add("2026", "01", 3)
	h.Add("2026", "01", 2)
	h.Add("2026", "02", 1)
	h.Add("2025", "12", 4)

	if h["2026"]["01"] != 5 {
		t.Fatalf("expected additive fold, got %d", h["2026"]["01"])
	}
	if h.Total() != 10 {
		t.Fatalf("expected total 10, got %d", h.Total())
	}
}

func TestDeployHistogramMarshalIsOrdered(t *testing.T) {
	h := make(DeployHistogram)
	h.Add("2026", "02", 1)
	h.Add("2026", "01", 2)
	h.Add("2025", "12", 3)

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	want := `{"2025":{"12":3},"2026":{"01":2,"02":1}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	var restored DeployHistogram
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if restored.Total() != h.Total() {
		t.Fatalf("expected round-trip to conserve total, got %d", restored.Total())
	}
}

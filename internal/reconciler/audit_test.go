package reconciler

import (
	"fmt"
	"testing"
	"time"
)

func auditEntry(id, message string) AuditEntry {
	return AuditEntry{InstanceID: id, Timestamp: time.Now(), Success: true, Message: message}
}

func TestAuditHistoryPerInstance(t *testing.T) {
	log := newAuditLog(10)
	log.append(auditEntry("a", "first"))
	log.append(auditEntry("b", "other"))
	log.append(auditEntry("a", "second"))

	history := log.history("a")
	if len(history) != 2 {
		t.Fatalf("expected 2 entries for a, got %d", len(history))
	}
	if history[0].Message != "first" || history[1].Message != "second" {
		t.Fatalf("history out of order: %+v", history)
	}

	if got := log.history("unknown"); len(got) != 0 {
		t.Fatalf("expected empty history for unknown instance, got %d entries", len(got))
	}
}

func TestAuditEvictsOldestAtCapacity(t *testing.T) {
	log := newAuditLog(3)
	for i := 1; i <= 5; i++ {
		log.append(auditEntry("a", fmt.Sprintf("entry-%d", i)))
	}

	history := log.history("a")
	if len(history) != 3 {
		t.Fatalf("expected capacity 3, got %d entries", len(history))
	}
	for i, want := range []string{"entry-3", "entry-4", "entry-5"} {
		if history[i].Message != want {
			t.Fatalf("entry %d: got %q, want %q", i, history[i].Message, want)
		}
	}
}

func TestAuditHistoryReturnsCopy(t *testing.T) {
	log := newAuditLog(10)
	log.append(auditEntry("a", "original"))

	history := log.history("a")
	history[0].Message = "mutated"

	if got := log.history("a")[0].Message; got != "original" {
		t.Fatalf("internal state mutated through returned slice: %q", got)
	}
}

func TestAuditForget(t *testing.T) {
	log := newAuditLog(10)
	log.append(auditEntry("a", "first"))
	log.forget("a")

	if got := log.history("a"); len(got) != 0 {
		t.Fatalf("expected empty history after forget, got %d entries", len(got))
	}
}

package history

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neilberkman/rentcheck/internal/core/db"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

type memPersister struct {
	saved [][]models.Analysis
	fail  bool
}

func (m *memPersister) SaveHistory(_ string, list []models.Analysis) error {
	if m.fail {
		return errors.New("disk full")
	}
	cp := append([]models.Analysis(nil), list...)
	m.saved = append(m.saved, cp)
	return nil
}

func (m *memPersister) LoadHistory(string) ([]models.Analysis, error) {
	return nil, nil
}

func analysis(id string, status models.Status, created time.Time) models.Analysis {
	a := models.Analysis{ID: id, Status: status, CreatedAt: created}
	switch status {
	case models.StatusCompleted:
		a.FinalReport = &models.FinalReport{AuthenticityScore: 50, QualityScore: 50}
	case models.StatusFailed:
		a.ErrorDetail = "boom"
	}
	return a
}

func TestUpsertCapAndUniqueness(t *testing.T) {
	p := &memPersister{}
	s, err := New(p, "s1", 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	for i := 0; i < 5; i++ {
		if err := s.Upsert(analysis(fmt.Sprintf("a%d", i), models.StatusPending, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	// Re-upserting an existing id replaces it in place
	if err := s.Upsert(analysis("a3", models.StatusInProgress, base)); err != nil {
		t.Fatal(err)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	want := []string{"a4", "a3", "a2"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
	if list[1].Status != models.StatusInProgress {
		t.Errorf("a3 not replaced in place: %+v", list[1])
	}
	if len(p.saved) != 6 {
		t.Errorf("persisted %d times, want 6", len(p.saved))
	}
}

func TestUpsertCapInvariant(t *testing.T) {
	s, _ := New(nil, "s1", 50, nil)
	for i := 0; i < 120; i++ {
		_ = s.Upsert(analysis(fmt.Sprintf("id-%d", i%70), models.StatusPending, time.Now()))

		seen := map[string]bool{}
		for _, a := range s.List() {
			if seen[a.ID] {
				t.Fatalf("duplicate id %s after %d upserts", a.ID, i+1)
			}
			seen[a.ID] = true
		}
		if s.Len() > 50 {
			t.Fatalf("len %d exceeds cap", s.Len())
		}
	}
}

func TestReconcile(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	s, _ := New(nil, "s1", 50, nil)
	_ = s.Upsert(analysis("both-terminal", models.StatusInProgress, base))
	_ = s.Upsert(analysis("local-ahead", models.StatusInProgress, base.Add(time.Minute)))
	_ = s.Upsert(analysis("local-only", models.StatusPending, base.Add(2*time.Minute)))
	_ = s.Upsert(analysis("tie", models.StatusPending, base.Add(3*time.Minute)))

	tieRemote := analysis("tie", models.StatusPending, base.Add(3*time.Minute))
	tieRemote.InputData.Address = "from server"

	server := []models.Analysis{
		analysis("both-terminal", models.StatusCompleted, base),
		analysis("local-ahead", models.StatusPending, base.Add(time.Minute)),
		analysis("server-only", models.StatusFailed, base.Add(4*time.Minute)),
		tieRemote,
	}

	got, err := s.Reconcile(server)
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]models.Analysis{}
	for _, a := range got {
		byID[a.ID] = a
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5: %+v", len(got), got)
	}
	if byID["both-terminal"].Status != models.StatusCompleted {
		t.Error("terminal server entry did not win")
	}
	if byID["local-ahead"].Status != models.StatusInProgress {
		t.Error("local entry further along the lifecycle was regressed")
	}
	if _, ok := byID["local-only"]; !ok {
		t.Error("local-only entry dropped")
	}
	if byID["tie"].InputData.Address != "from server" {
		t.Error("server did not win the tie")
	}

	// newest first
	order := []string{"server-only", "tie", "local-only", "local-ahead", "both-terminal"}
	for i, id := range order {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestReconcileNeverRegressesTerminal(t *testing.T) {
	base := time.Now()
	s, _ := New(nil, "s1", 50, nil)
	_ = s.Upsert(analysis("done", models.StatusCompleted, base))

	got, _ := s.Reconcile([]models.Analysis{analysis("done", models.StatusInProgress, base)})
	if got[0].Status != models.StatusCompleted {
		t.Errorf("terminal local entry regressed to %s", got[0].Status)
	}
}

func TestReconcileKeepsLocalOnlyState(t *testing.T) {
	base := time.Now()
	local := analysis("done", models.StatusCompleted, base)
	local.InputData.Address = "3 Dock St"
	local.Location = &models.Location{Latitude: 1, Longitude: 2}
	local.IncompleteFields = []string{"price_details"}
	local.Chat = &models.Chat{ID: "chat-1", Messages: []models.ChatMessage{
		{ID: "seed", Role: models.RoleAssistant, Content: "Explanation"},
		{ID: "q1", Role: models.RoleUser, Content: "Is it real?", State: models.MessageFailed},
	}}

	tests := []struct {
		name       string
		remoteChat *models.Chat
		want       []string
	}{
		{"server sends no chat", nil, []string{"seed", "q1"}},
		{"server chat has no messages", &models.Chat{ID: "chat-1"}, []string{"seed", "q1"}},
		{"server chat is ahead", &models.Chat{ID: "chat-1", Messages: []models.ChatMessage{
			{ID: "s1", Role: models.RoleAssistant, Content: "Explanation"},
			{ID: "s2", Role: models.RoleUser, Content: "Earlier question"},
		}}, []string{"s1", "s2", "q1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := New(nil, "s1", 50, nil)
			_ = s.Upsert(local)

			remote := analysis("done", models.StatusCompleted, base)
			remote.FinalReport = &models.FinalReport{AuthenticityScore: 90, QualityScore: 80}
			remote.Chat = tt.remoteChat

			got, err := s.Reconcile([]models.Analysis{remote})
			if err != nil {
				t.Fatal(err)
			}
			a := got[0]
			if a.FinalReport.AuthenticityScore != 90 {
				t.Error("server report not taken")
			}
			if a.Location == nil || a.Location.Latitude != 1 {
				t.Errorf("location = %v", a.Location)
			}
			if len(a.IncompleteFields) != 1 || a.InputData.Address != "3 Dock St" {
				t.Errorf("incomplete=%v input=%+v", a.IncompleteFields, a.InputData)
			}
			if a.Chat == nil || a.Chat.ID != "chat-1" {
				t.Fatalf("chat = %+v", a.Chat)
			}
			var ids []string
			for _, m := range a.Chat.Messages {
				ids = append(ids, m.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("messages = %v, want %v", ids, tt.want)
			}
			if last := a.Chat.Messages[len(a.Chat.Messages)-1]; last.State != models.MessageFailed {
				t.Errorf("failed message state lost: %+v", last)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	s, _ := New(nil, "s1", 50, nil)
	_ = s.Upsert(analysis("a", models.StatusPending, time.Now()))

	removed, err := s.Remove("a")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if removed, _ := s.Remove("a"); removed {
		t.Error("second Remove reported success")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("entry still present")
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	s, _ := New(&memPersister{fail: true}, "s1", 50, nil)
	if err := s.Upsert(analysis("a", models.StatusPending, time.Now())); err == nil {
		t.Error("expected persistence error")
	}
}

func TestLoadsPersistedHistory(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()
	_ = tmpfile.Close()

	database, err := db.New(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = database.Close() }()

	first, err := New(database, "s1", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = first.Upsert(analysis("a", models.StatusPending, time.Now()))
	_ = first.Upsert(analysis("b", models.StatusCompleted, time.Now()))

	second, err := New(database, "s1", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	list := second.List()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("reloaded history = %+v", list)
	}
}

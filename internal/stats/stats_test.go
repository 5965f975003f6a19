package stats

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestWriteStats_Counters(t *testing.T) {
	s := NewWriteStats()

	s.RecordInsert()
	s.RecordInsert()
	s.RecordSkip()
	s.Add(10, 4)

	if s.Inserted() != 12 {
		t.Errorf("Inserted() = %d, want 12", s.Inserted())
	}
	if s.Skipped() != 5 {
		t.Errorf("Skipped() = %d, want 5", s.Skipped())
	}
	if s.Total() != 17 {
		t.Errorf("Total() = %d, want 17", s.Total())
	}
	if got := s.String(); got != "inserted=12 skipped=5 total=17" {
		t.Errorf("String() = %q", got)
	}

	s.Reset()
	if s.Total() != 0 {
		t.Errorf("Total() after Reset = %d, want 0", s.Total())
	}
}

func TestWriteStats_Concurrent(t *testing.T) {
	s := NewWriteStats()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordInsert()
				s.RecordSkip()
			}
		}()
	}
	wg.Wait()

	if s.Inserted() != 5000 || s.Skipped() != 5000 {
		t.Errorf("inserted=%d skipped=%d, want 5000 each", s.Inserted(), s.Skipped())
	}
}

func TestWriteStats_LogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := NewWriteStats()
	s.Add(3, 1)
	s.LogSummary(logger, "reddit_mentions")

	out := buf.String()
	for _, want := range []string{"entity=reddit_mentions", "inserted=3", "skipped=1", "total=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

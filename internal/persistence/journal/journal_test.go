package journal

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"paddlers.io/internal/sim/event"
)

func TestWriteRotateRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	w := NewWriter(dir)
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	ev := event.NewBuildingCompletion(4, 100)
	if err := w.Record(NewEntry("town", ev, 150, OutcomeDone, nil)); err != nil {
		t.Fatalf("record: %v", err)
	}
	now = now.Add(2 * time.Minute)
	retry := ev.Retry(200)
	if err := w.Record(NewEntry("town", retry, 210, OutcomeRetry, errors.New("database is locked"))); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir)
	if err != nil || len(files) != 2 {
		t.Fatalf("files=%v err=%v want 2 hourly files", files, err)
	}
	if filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", filepath.Base(files[0]))
	}

	var got []Entry
	if err := Read(dir, func(e Entry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d want=2", len(got))
	}
	if got[0].Kind != event.BuildingCompletion || got[0].Outcome != OutcomeDone || got[0].ID == "" {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Attempt != 1 || got[1].Origin != 100 || got[1].Outcome != OutcomeRetry || got[1].Error != "database is locked" {
		t.Fatalf("second=%+v", got[1])
	}
	payload, ok := got[0].Payload.(map[string]any)
	if !ok || payload["building_id"] != float64(4) {
		t.Fatalf("payload=%#v", got[0].Payload)
	}
}

func TestAsyncWriterDrainsOnClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	a := NewAsyncWriter(NewWriter(dir), 16, log.New(io.Discard, "", 0))

	for i := int64(1); i <= 5; i++ {
		if err := a.Record(NewEntry("economy", event.NewEconomyTick(i, 100), 100, OutcomeDone, nil)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Record(NewEntry("economy", event.NewEconomyTick(9, 100), 100, OutcomeDone, nil)); err != nil {
		t.Fatalf("record after close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	var got []Entry
	if err := Read(dir, func(e Entry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 || a.Written() != 5 || a.Dropped() != 0 {
		t.Fatalf("entries=%d written=%d dropped=%d want 5/5/0", len(got), a.Written(), a.Dropped())
	}
	for i, e := range got {
		p, _ := e.Payload.(map[string]any)
		if p["village_id"] != float64(i+1) {
			t.Fatalf("entry %d payload=%#v out of order", i, e.Payload)
		}
	}
}

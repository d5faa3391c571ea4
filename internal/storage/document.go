package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const documentVersion = 1

// Record is the persisted form of a MetricEntry.
type Record struct {
	ID    string    `json:"id"`
	Seq   uint64    `json:"seq,omitempty"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Document is the whole persisted store:
//
//	{"version":1,
//	 "last_seq":7,
//	 "participants":{"<id>":{"pages":[{"id":"…","seq":7,"date":"…","value":45}]}},
//	 "weeks":[{"week":"2026-W42","opened_at":"…"}]}
//
// Seq numbers records in the order they were appended to this store.
type Document struct {
	Version      int                         `json:"version"`
	LastSeq      uint64                      `json:"last_seq,omitempty"`
	Participants map[int64]map[Kind][]Record `json:"participants"`
	Weeks        []OpenedWeek                `json:"weeks"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Version: documentVersion, Participants: make(map[int64]map[Kind][]Record)}
}

// Marshal encodes the document in its canonical on-disk form.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode store: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a document. Empty input yields an empty document.
func Unmarshal(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("decode store: unsupported version %d", doc.Version)
	}
	doc.Version = documentVersion
	if doc.Participants == nil {
		doc.Participants = make(map[int64]map[Kind][]Record)
	}
	return doc, nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:      d.Version,
		LastSeq:      d.LastSeq,
		Participants: make(map[int64]map[Kind][]Record, len(d.Participants)),
		Weeks:        append([]OpenedWeek(nil), d.Weeks...),
	}
	for id, kinds := range d.Participants {
		m := make(map[Kind][]Record, len(kinds))
		for k, recs := range kinds {
			m[k] = append([]Record(nil), recs...)
		}
		out.Participants[id] = m
	}
	return out
}

// Entries returns the participant's entries across all kinds ordered by
// timestamp. Entries with equal timestamps keep the order they were appended.
func (d *Document) Entries(participantID int64) []MetricEntry {
	kinds := d.Participants[participantID]
	if len(kinds) == 0 {
		return []MetricEntry{}
	}
	type seqEntry struct {
		seq uint64
		e   MetricEntry
	}
	var all []seqEntry
	for k, recs := range kinds {
		for _, r := range recs {
			all = append(all, seqEntry{
				seq: r.Seq,
				e:   MetricEntry{ID: r.ID, ParticipantID: participantID, Kind: k, Value: r.Value, RecordedAt: r.Date},
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.e.RecordedAt.Equal(b.e.RecordedAt) {
			return a.e.RecordedAt.Before(b.e.RecordedAt)
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.e.Kind < b.e.Kind
	})
	out := make([]MetricEntry, len(all))
	for i, se := range all {
		out[i] = se.e
	}
	return out
}

// ParticipantIDs returns every participant with at least one entry, sorted.
func (d *Document) ParticipantIDs() []int64 {
	out := make([]int64, 0, len(d.Participants))
	for id := range d.Participants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Document) weekOpen(weekID string) bool {
	for _, w := range d.Weeks {
		if w.Week == weekID {
			return true
		}
	}
	return false
}

func (d *Document) hasEntry(participantID int64, id string) bool {
	for _, recs := range d.Participants[participantID] {
		for _, r := range recs {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}

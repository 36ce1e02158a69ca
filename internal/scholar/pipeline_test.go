package scholar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/searchmcp/internal/notify"
)

// fakeProvider yields total records and fails the Next call at index failAt,
// or never when failAt < 0.
type fakeProvider struct {
	total     int
	failAt    int
	searchErr error
	citeErr   error
	nextCalls int
	citeCalls int
}

func (f *fakeProvider) Search(ctx context.Context, q Query) (Iterator, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &fakeIterator{p: f}, nil
}

func (f *fakeProvider) Citation(ctx context.Context, rec Record) (string, error) {
	f.citeCalls++
	if f.citeErr != nil {
		return "", f.citeErr
	}
	return "@article{" + rec.ClusterID + "}", nil
}

type fakeIterator struct {
	p *fakeProvider
	i int
}

func (it *fakeIterator) Next(ctx context.Context) (Record, error) {
	it.p.nextCalls++
	if it.i == it.p.failAt {
		return Record{}, &ProviderError{Op: "page", Err: ErrBlocked}
	}
	if it.i >= it.p.total {
		return Record{}, io.EOF
	}
	it.i++
	return Record{Title: fmt.Sprintf("Paper %d", it.i), ClusterID: fmt.Sprintf("c%d", it.i)}, nil
}

type sleepLog struct {
	calls []time.Duration
	err   error
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return s.err
}

func newTestPipeline(p Provider, s *sleepLog) *Pipeline {
	return NewPipeline(PipelineConfig{Provider: p, Sleep: s.sleep})
}

func TestPipeline_Search(t *testing.T) {
	prov := &fakeProvider{total: 20, failAt: -1}
	sl := &sleepLog{}
	sink := &notify.Recorder{}

	got := newTestPipeline(prov, sl).Search(context.Background(), sink, Query{Text: "q"}, 3)

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, rec := range got {
		if want := fmt.Sprintf("@article{c%d}", i+1); rec.BibTeX != want {
			t.Errorf("record %d: expected bibtex %q, got %q", i, want, rec.BibTeX)
		}
	}
	if prov.nextCalls != 3 {
		t.Errorf("expected enumeration to stop at the limit, got %d Next calls", prov.nextCalls)
	}
	if len(sl.calls) != 3 {
		t.Errorf("expected one pause per record, got %d", len(sl.calls))
	}
	for _, d := range sl.calls {
		if d != DefaultDelay {
			t.Errorf("expected %v pause, got %v", DefaultDelay, d)
		}
	}

	entries := sink.Entries()
	if len(entries) != 2 || entries[0].Message != "Searching Google Scholar for: q" ||
		entries[1].Message != "Successfully found 3 results on Google Scholar" {
		t.Errorf("unexpected notifications: %+v", entries)
	}
}

func TestPipeline_DefaultMax(t *testing.T) {
	prov := &fakeProvider{total: 50, failAt: -1}
	got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), notify.Discard, Query{Text: "q"}, 0)
	if len(got) != DefaultMaxResults {
		t.Errorf("expected %d records, got %d", DefaultMaxResults, len(got))
	}
}

func TestPipeline_Exhausted(t *testing.T) {
	prov := &fakeProvider{total: 2, failAt: -1}
	sink := &notify.Recorder{}
	got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), sink, Query{Text: "q"}, 10)
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
	if sink.Count(notify.LevelWarning) != 0 || sink.Count(notify.LevelError) != 0 {
		t.Errorf("exhaustion is not a failure: %+v", sink.Entries())
	}
}

func TestPipeline_PartialFailure(t *testing.T) {
	for _, failAt := range []int{1, 2, 4} {
		t.Run(fmt.Sprint(failAt), func(t *testing.T) {
			prov := &fakeProvider{total: 10, failAt: failAt}
			sink := &notify.Recorder{}

			got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), sink, Query{Text: "q"}, 10)

			if len(got) != failAt {
				t.Fatalf("expected %d partial records, got %d", failAt, len(got))
			}
			if n := sink.Count(notify.LevelWarning); n != 1 {
				t.Errorf("expected exactly one warning, got %d", n)
			}
			if n := sink.Count(notify.LevelError); n != 0 {
				t.Errorf("expected no error, got %d", n)
			}
			for _, e := range sink.Entries() {
				if e.Level == notify.LevelWarning && !strings.Contains(e.Message, "may be incomplete") {
					t.Errorf("unexpected warning text %q", e.Message)
				}
			}
		})
	}
}

func TestPipeline_FailureBeforeFirstRecord(t *testing.T) {
	prov := &fakeProvider{total: 10, failAt: 0}
	sink := &notify.Recorder{}

	got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), sink, Query{Text: "q"}, 10)

	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if sink.Count(notify.LevelError) != 1 || sink.Count(notify.LevelWarning) != 0 {
		t.Errorf("expected one error and no warning: %+v", sink.Entries())
	}
}

func TestPipeline_SearchError(t *testing.T) {
	prov := &fakeProvider{searchErr: &ProviderError{Op: "search", Err: errors.New("empty query")}}
	sink := &notify.Recorder{}

	got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), sink, Query{}, 5)
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
	entries := sink.Entries()
	if len(entries) != 2 || entries[1].Level != notify.LevelError ||
		!strings.HasPrefix(entries[1].Message, "Unexpected error during Scholar search:") {
		t.Errorf("unexpected notifications: %+v", entries)
	}
}

func TestPipeline_CitationFailure(t *testing.T) {
	prov := &fakeProvider{total: 10, failAt: -1, citeErr: errors.New("cite dialog gone")}
	sink := &notify.Recorder{}

	got := newTestPipeline(prov, &sleepLog{}).Search(context.Background(), sink, Query{Text: "q"}, 5)
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
	if prov.citeCalls != 1 || prov.nextCalls != 1 {
		t.Errorf("expected enumeration to stop at the first failure, next=%d cite=%d", prov.nextCalls, prov.citeCalls)
	}
	if sink.Count(notify.LevelError) != 1 {
		t.Errorf("expected one error: %+v", sink.Entries())
	}
}

func TestPipeline_CancelledDuringPause(t *testing.T) {
	prov := &fakeProvider{total: 10, failAt: -1}
	sl := &sleepLog{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPipeline(PipelineConfig{Provider: prov, Sleep: func(ctx context.Context, d time.Duration) error {
		if len(sl.calls) == 2 {
			cancel()
			return ctx.Err()
		}
		return sl.sleep(ctx, d)
	}})
	sink := &notify.Recorder{}

	got := p.Search(ctx, sink, Query{Text: "q"}, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 records before cancellation, got %d", len(got))
	}
	if sink.Count(notify.LevelWarning) != 1 {
		t.Errorf("expected one warning: %+v", sink.Entries())
	}
}

func TestPipeline_NoDelay(t *testing.T) {
	sl := &sleepLog{}
	p := NewPipeline(PipelineConfig{Provider: &fakeProvider{total: 3, failAt: -1}, Delay: -1, Sleep: sl.sleep})
	if got := p.Search(context.Background(), notify.Discard, Query{Text: "q"}, 3); len(got) != 3 {
		t.Errorf("expected 3 records, got %d", len(got))
	}
	if len(sl.calls) != 0 {
		t.Errorf("expected no pauses, got %d", len(sl.calls))
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

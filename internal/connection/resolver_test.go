package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dearvn/tradovate-go/internal/api"
)

type fakeFinder struct {
	found       map[string]int64
	suggestions map[string][]api.Contract
	findErr     error
	suggestErr  error
	delay       time.Duration

	finds    atomic.Int32
	suggests atomic.Int32

	mu     sync.Mutex
	tokens []string
}

func (f *fakeFinder) FindContract(ctx context.Context, name, token string) (*api.Contract, error) {
	f.finds.Add(1)
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	if id, ok := f.found[name]; ok {
		return &api.Contract{ID: id, Name: name}, nil
	}
	return nil, nil
}

func (f *fakeFinder) SuggestContracts(ctx context.Context, text, token string) ([]api.Contract, error) {
	f.suggests.Add(1)
	if f.suggestErr != nil {
		return nil, f.suggestErr
	}
	return f.suggestions[text], nil
}

func TestContractRef(t *testing.T) {
	tests := []struct {
		name       string
		in         any
		wantID     int64
		wantSymbol string
		wantErr    bool
	}{
		{"plain symbol", "ESZ2", 0, "ESZ2", false},
		{"sentinel id", "@123", 123, "", false},
		{"sentinel non-numeric", "@ES", 0, "", true},
		{"sentinel alone", "@", 0, "", true},
		{"float id", float64(456), 456, "", false},
		{"int id", 7, 7, "", false},
		{"json number", json.Number("99"), 99, "", false},
		{"fractional", 1.5, 0, "", true},
		{"missing", nil, 0, "", true},
		{"empty", "", 0, "", true},
		{"wrong type", true, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, symbol, err := contractRef(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("contractRef() error = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID || symbol != tt.wantSymbol {
				t.Errorf("contractRef() = %d, %q, want %d, %q", id, symbol, tt.wantID, tt.wantSymbol)
			}
		})
	}
}

func TestResolver_FindThenCache(t *testing.T) {
	f := &fakeFinder{found: map[string]int64{"ESZ2": 123}}
	r := newContractResolver(f, slog.Default())

	for i := 0; i < 3; i++ {
		id, err := r.resolve(context.Background(), "ESZ2", "tok")
		if err != nil {
			t.Fatalf("resolve() error: %v", err)
		}
		if id != 123 {
			t.Errorf("resolve() = %d, want 123", id)
		}
	}
	if f.finds.Load() != 1 {
		t.Errorf("finds = %d, want 1 (cached)", f.finds.Load())
	}
	if f.tokens[0] != "tok" {
		t.Errorf("token = %q, want tok", f.tokens[0])
	}
}

func TestResolver_SuggestFallback(t *testing.T) {
	tests := []struct {
		name        string
		suggestions []api.Contract
		want        int64
	}{
		{"exact match preferred", []api.Contract{{ID: 1, Name: "ESH3"}, {ID: 2, Name: "esz2"}}, 2},
		{"first when ambiguous", []api.Contract{{ID: 10, Name: "ESH3"}, {ID: 11, Name: "ESM3"}}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFinder{suggestions: map[string][]api.Contract{"ESZ2": tt.suggestions}}
			r := newContractResolver(f, slog.Default())

			id, err := r.resolve(context.Background(), "ESZ2", "tok")
			if err != nil {
				t.Fatalf("resolve() error: %v", err)
			}
			if id != tt.want {
				t.Errorf("resolve() = %d, want %d", id, tt.want)
			}
			if f.suggests.Load() != 1 {
				t.Errorf("suggests = %d, want 1", f.suggests.Load())
			}
		})
	}
}

func TestResolver_FindErrorFallsBackToSuggest(t *testing.T) {
	f := &fakeFinder{
		findErr:     &api.APIError{StatusCode: 404},
		suggestions: map[string][]api.Contract{"ESZ2": {{ID: 5, Name: "ESZ2"}}},
	}
	r := newContractResolver(f, slog.Default())

	id, err := r.resolve(context.Background(), "ESZ2", "tok")
	if err != nil || id != 5 {
		t.Errorf("resolve() = %d, %v, want 5, nil", id, err)
	}
}

func TestResolver_Exhausted(t *testing.T) {
	f := &fakeFinder{}
	r := newContractResolver(f, slog.Default())

	_, err := r.resolve(context.Background(), "NOPE", "tok")

	var resErr *SymbolResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("resolve() error = %v, want *SymbolResolutionError", err)
	}
	if resErr.Symbol != "NOPE" || !errors.Is(err, ErrNoContract) {
		t.Errorf("error = %v", err)
	}
}

func TestResolver_BothLookupsFail(t *testing.T) {
	findErr := errors.New("find down")
	suggestErr := errors.New("suggest down")
	f := &fakeFinder{findErr: findErr, suggestErr: suggestErr}
	r := newContractResolver(f, slog.Default())

	_, err := r.resolve(context.Background(), "ESZ2", "tok")
	if !errors.Is(err, findErr) || !errors.Is(err, suggestErr) {
		t.Errorf("resolve() error = %v, want both causes", err)
	}
}

func TestResolver_ConcurrentLookupsShareOneCall(t *testing.T) {
	f := &fakeFinder{found: map[string]int64{"ESZ2": 123}, delay: 50 * time.Millisecond}
	r := newContractResolver(f, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := r.resolve(context.Background(), "ESZ2", "tok"); err != nil || id != 123 {
				t.Errorf("resolve() = %d, %v", id, err)
			}
		}()
	}
	wg.Wait()

	if got := f.finds.Load(); got != 1 {
		t.Errorf("finds = %d, want 1", got)
	}
}

func TestResolver_CallerCancelLeavesSharedLookup(t *testing.T) {
	f := &fakeFinder{found: map[string]int64{"ESZ2": 123}, delay: 150 * time.Millisecond}
	r := newContractResolver(f, slog.Default())

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.resolve(first, "ESZ2", "tok")
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type outcome struct {
		id  int64
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		id, err := r.resolve(context.Background(), "ESZ2", "tok")
		second <- outcome{id, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("canceled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("canceled caller kept waiting for the shared lookup")
	}

	got := <-second
	if got.err != nil || got.id != 123 {
		t.Errorf("second caller = %d, %v, want 123, nil", got.id, got.err)
	}
	if n := f.finds.Load(); n != 1 {
		t.Errorf("finds = %d, want 1", n)
	}
}

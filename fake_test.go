package kgraph

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// fakeService is a scripted graph.Service. Unset hooks return "[]" and "{}".
type fakeService struct {
	extract     func(ctx context.Context, segment string) (string, error)
	consolidate func(ctx context.Context, entities []string) (string, error)

	mu               sync.Mutex
	extractCalls     int
	consolidateCalls int
	inFlight         int
	maxInFlight      int
}

func (f *fakeService) ExtractTriples(ctx context.Context, segment string) (string, error) {
	f.mu.Lock()
	f.extractCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.extract == nil {
		return "[]", nil
	}
	return f.extract(ctx, segment)
}

func (f *fakeService) ConsolidateEntities(ctx context.Context, entities []string) (string, error) {
	f.mu.Lock()
	f.consolidateCalls++
	f.mu.Unlock()
	if f.consolidate == nil {
		return "{}", nil
	}
	return f.consolidate(ctx, entities)
}

func (f *fakeService) calls() (extract, consolidate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extractCalls, f.consolidateCalls
}

// sentenceTriples reads every "<subject> <verb> <object>." sentence of a
// segment as a triple.
func sentenceTriples(_ context.Context, segment string) (string, error) {
	type rec struct {
		Subject   string `json:"subject"`
		Predicate string `json:"predicate"`
		Object    string `json:"object"`
	}
	out := []rec{}
	for _, sent := range strings.Split(segment, ".") {
		words := strings.Fields(sent)
		if len(words) != 3 {
			continue
		}
		out = append(out, rec{words[0], words[1], words[2]})
	}
	data, err := json.Marshal(out)
	return string(data), err
}

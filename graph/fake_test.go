package graph

import (
	"context"
	"sync"
)

// fakeService is a scripted Service. Extraction responses are keyed by
// segment text; a missing key returns "[]".
type fakeService struct {
	mu sync.Mutex

	extract    map[string]string
	extractErr map[string]error

	consolidate    string
	consolidateErr error

	extractCalls     int
	consolidateCalls int
	lastEntities     []string
}

func (f *fakeService) ExtractTriples(_ context.Context, segment string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if err := f.extractErr[segment]; err != nil {
		return "", err
	}
	if resp, ok := f.extract[segment]; ok {
		return resp, nil
	}
	return "[]", nil
}

func (f *fakeService) ConsolidateEntities(_ context.Context, entities []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consolidateCalls++
	f.lastEntities = append([]string(nil), entities...)
	if f.consolidateErr != nil {
		return "", f.consolidateErr
	}
	return f.consolidate, nil
}

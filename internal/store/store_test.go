// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package store

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBucketPutGet(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("services")

	in := testRecord{Name: "whisper", Count: 3}
	if err := b.Put("svc-1", in); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	var out testRecord
	if err := b.Get("svc-1", &out); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if out != in {
		t.Errorf("Get() = %+v, want %+v", out, in)
	}
}

func TestBucketGetMissing(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("services")

	var out testRecord
	if err := b.Get("nope", &out); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestBucketIsolation(t *testing.T) {
	db := openTestDB(t)
	a := db.Bucket("providers")
	b := db.Bucket("shares")

	if err := a.Put("x", testRecord{Name: "in-a"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	var out testRecord
	if err := b.Get("x", &out); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("cross-bucket Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestBucketDelete(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("services")

	if err := b.Put("svc-1", testRecord{Name: "x"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := b.Delete("svc-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	exists, err := b.Exists("svc-1")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists {
		t.Error("key still exists after Delete")
	}

	// Deleting again is a no-op.
	if err := b.Delete("svc-1"); err != nil {
		t.Errorf("Delete() of missing key error: %v", err)
	}
}

func TestBucketKeysAndForEach(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("nodes")

	want := []string{"node-a", "node-b", "node-c"}
	for i, key := range want {
		if err := b.Put(key, testRecord{Name: key, Count: i}); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}

	keys, err := b.Keys()
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	seen := make(map[string]int)
	err = b.ForEach(func(key string, value []byte) error {
		var rec testRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		seen[key] = rec.Count
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error: %v", err)
	}
	if len(seen) != 3 || seen["node-b"] != 1 {
		t.Errorf("ForEach() visited %v", seen)
	}

	count, err := b.Count()
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
}

func TestBucketMutate(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("shares")

	if err := b.Put("tok", testRecord{Name: "tok", Count: 0}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	err := b.Mutate("tok", func(current []byte) ([]byte, error) {
		var rec testRecord
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		rec.Count++
		return json.Marshal(rec)
	})
	if err != nil {
		t.Fatalf("Mutate() error: %v", err)
	}

	var out testRecord
	if err := b.Get("tok", &out); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count after Mutate = %d, want 1", out.Count)
	}
}

func TestBucketMutateMissing(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("shares")

	err := b.Mutate("nope", func(current []byte) ([]byte, error) {
		return current, nil
	})
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Mutate() error = %v, want ErrKeyNotFound", err)
	}
}

func TestBucketMutateConcurrent(t *testing.T) {
	db := openTestDB(t)
	b := db.Bucket("shares")

	if err := b.Put("ctr", testRecord{Count: 0}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := b.Mutate("ctr", func(current []byte) ([]byte, error) {
					var rec testRecord
					if err := json.Unmarshal(current, &rec); err != nil {
						return nil, err
					}
					rec.Count++
					return json.Marshal(rec)
				})
				if err != nil {
					t.Errorf("Mutate() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var out testRecord
	if err := b.Get("ctr", &out); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if out.Count != workers*perWorker {
		t.Errorf("Count = %d, want %d", out.Count, workers*perWorker)
	}
}

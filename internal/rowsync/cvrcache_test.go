package rowsync

import "testing"

func TestCVRCachePutGet(t *testing.T) {
	cache, err := NewCVRCache(4)
	if err != nil {
		t.Fatalf("NewCVRCache: %v", err)
	}

	cvr := &ClientViewRecord{Lists: ClientView{"l1": 1}, ClientVersion: 3}
	cache.Put("cg1", 7, cvr)

	got, ok := cache.Get("cg1", 7)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.ClientVersion != 3 || got.Lists["l1"] != 1 {
		t.Fatalf("unexpected cached cvr: %+v", got)
	}
}

func TestCVRCacheMissOnUnknownVersion(t *testing.T) {
	cache, err := NewCVRCache(4)
	if err != nil {
		t.Fatalf("NewCVRCache: %v", err)
	}
	cache.Put("cg1", 7, emptyCVR())

	if _, ok := cache.Get("cg1", 8); ok {
		t.Fatalf("expected miss for version never issued")
	}
	if _, ok := cache.Get("cg2", 7); ok {
		t.Fatalf("expected miss for other client group")
	}
}

func TestCVRCacheEvictsOldest(t *testing.T) {
	cache, err := NewCVRCache(2)
	if err != nil {
		t.Fatalf("NewCVRCache: %v", err)
	}
	cache.Put("cg1", 1, emptyCVR())
	cache.Put("cg1", 2, emptyCVR())
	cache.Put("cg1", 3, emptyCVR())

	if _, ok := cache.Get("cg1", 1); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := cache.Get("cg1", 3); !ok {
		t.Fatalf("expected newest entry present")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected len 2, got %d", cache.Len())
	}
}

func TestCVRCacheDefaultSize(t *testing.T) {
	cache, err := NewCVRCache(0)
	if err != nil {
		t.Fatalf("NewCVRCache: %v", err)
	}
	cache.Put("cg1", 1, emptyCVR())
	if _, ok := cache.Get("cg1", 1); !ok {
		t.Fatalf("expected hit with defaulted size")
	}
}

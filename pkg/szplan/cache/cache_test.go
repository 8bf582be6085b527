package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/szplan/pkg/szplan/probe"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

var _ probe.SnapshotStore = (*Cache)(nil)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleCaps() *types.Capabilities {
	return &types.Capabilities{
		Host:    types.HostInfo{CPUModel: "test cpu", LogicalCPUs: 16, TotalMemory: 64 << 30, ByteOrder: "Little Endian"},
		Runtime: "nvidia-smi",
		Devices: []types.DeviceInfo{{
			Index:             0,
			Name:              "NVIDIA A100-SXM4-40GB",
			DriverVersion:     types.Version{Major: 12, Minor: 2},
			ComputeMajor:      8,
			GlobalMemory:      40 << 30,
			SharedMemPerBlock: 48 << 10,
			RegistersPerBlock: 65536,
		}},
		ProbedAt: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestCacheSaveLoad(t *testing.T) {
	c := openTestCache(t)

	want := sampleCaps()
	if err := c.Save("node1/nvidia-smi", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := c.Load("node1/nvidia-smi")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Host != want.Host {
		t.Errorf("host = %+v, want %+v", got.Host, want.Host)
	}
	if len(got.Devices) != 1 || got.Devices[0] != want.Devices[0] {
		t.Errorf("devices = %+v, want %+v", got.Devices, want.Devices)
	}
	if !got.ProbedAt.Equal(want.ProbedAt) {
		t.Errorf("probed at = %v, want %v", got.ProbedAt, want.ProbedAt)
	}
}

func TestCacheLoadMissing(t *testing.T) {
	c := openTestCache(t)

	if _, err := c.Load("nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheRejectsOtherFormatVersion(t *testing.T) {
	c := openTestCache(t)

	e := entry{Version: FormatVersion + 1, Caps: *sampleCaps()}
	raw, err := e.encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.store.Put(MakeKey("old"), raw, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Load("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign format, got %v", err)
	}
}

func TestCacheEntriesAndStats(t *testing.T) {
	c := openTestCache(t)
	c.now = func() time.Time { return time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC) }

	noDev := sampleCaps()
	noDev.Runtime = "none"
	noDev.Devices = nil

	if err := c.Save("b/nvidia-smi", sampleCaps()); err != nil {
		t.Fatal(err)
	}
	if err := c.Save("a/none", noDev); err != nil {
		t.Fatal(err)
	}

	entries, err := c.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Key != "a/none" || entries[0].Devices != 0 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Runtime != "nvidia-smi" || entries[1].Devices != 1 {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	if !entries[1].StoredAt.Equal(c.now()) {
		t.Errorf("stored at = %v", entries[1].StoredAt)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("stats entries = %d, want 2", stats.Entries)
	}
}

func TestCacheClearAndDelete(t *testing.T) {
	c := openTestCache(t)

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Save(k, sampleCaps()); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d entries, want 2", n)
	}

	entries, _ := c.Entries()
	if len(entries) != 0 {
		t.Errorf("expected empty cache, got %v", entries)
	}
}

func TestCacheSaveNil(t *testing.T) {
	c := openTestCache(t)
	if err := c.Save("k", nil); err == nil {
		t.Error("expected error saving nil capabilities")
	}
}

func TestKeys(t *testing.T) {
	key, ok := ParseKey(MakeKey("host/runtime"))
	if !ok || key != "host/runtime" {
		t.Errorf("ParseKey(MakeKey) = %q, %v", key, ok)
	}
	if _, ok := ParseKey([]byte("other\x00key")); ok {
		t.Error("foreign namespace should not parse")
	}
	if _, ok := ParseKey([]byte("nokey")); ok {
		t.Error("key without separator should not parse")
	}
}

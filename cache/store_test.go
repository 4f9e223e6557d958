package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MuxYang/ncmbot/model"
)

// memRepo 测试用的内存元数据表
type memRepo struct {
	mu sync.Mutex
	m  map[string]*model.CachedTrack
}

func newMemRepo() *memRepo {
	return &memRepo{m: make(map[string]*model.CachedTrack)}
}

func (r *memRepo) GetByID(id string) (*model.CachedTrack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) ListCached() ([]model.CachedTrack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CachedTrack
	for _, t := range r.m {
		if t.IsCached {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memRepo) Upsert(track *model.CachedTrack) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *track
	r.m[track.ID] = &cp
	return nil
}

func (r *memRepo) ClearCacheFields(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok {
		t.IsCached = false
		t.BlobPath = ""
		t.SizeBytes = 0
		t.CachedAtEpoch = 0
	}
	return nil
}

// newTestStore 建一个临时目录上的缓存，并塞入指定的已缓存条目
func newTestStore(t *testing.T, entries ...model.CachedTrack) (*Store, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	store, err := NewStore(repo, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for i := range entries {
		e := entries[i]
		if e.BlobPath == "" {
			e.BlobPath = filepath.Join(store.Root(), e.ID+".mp3")
			if err := os.WriteFile(e.BlobPath, make([]byte, int(e.SizeBytes)), 0644); err != nil {
				t.Fatal(err)
			}
		}
		e.IsCached = true
		if err := repo.Upsert(&e); err != nil {
			t.Fatal(err)
		}
	}
	return store, repo
}

func TestEvictUntilFitsNoop(t *testing.T) {
	store, repo := newTestStore(t,
		model.CachedTrack{ID: "1", SizeBytes: 100, CachedAtEpoch: 10},
	)

	if err := store.EvictUntilFits(100, 1000); err != nil {
		t.Fatal(err)
	}

	track, _ := repo.GetByID("1")
	if !track.IsCached {
		t.Error("预算充足时不应淘汰")
	}
}

func TestEvictOldestFirst(t *testing.T) {
	store, repo := newTestStore(t,
		model.CachedTrack{ID: "newest", SizeBytes: 100, CachedAtEpoch: 30},
		model.CachedTrack{ID: "oldest", SizeBytes: 100, CachedAtEpoch: 10},
		model.CachedTrack{ID: "middle", SizeBytes: 100, CachedAtEpoch: 20},
	)

	// 总量300，新入100，预算350：需要腾出50，淘汰最旧的一条即可
	if err := store.EvictUntilFits(100, 350); err != nil {
		t.Fatal(err)
	}

	oldest, _ := repo.GetByID("oldest")
	if oldest.IsCached {
		t.Error("最旧的条目应被淘汰")
	}
	for _, id := range []string{"middle", "newest"} {
		track, _ := repo.GetByID(id)
		if !track.IsCached {
			t.Errorf("%s 不应被淘汰", id)
		}
	}

	total, _ := store.TotalCachedBytes()
	if total+100 > 350 {
		t.Errorf("淘汰后仍超预算: total=%d", total)
	}
}

func TestEvictBudgetInvariant(t *testing.T) {
	store, _ := newTestStore(t,
		model.CachedTrack{ID: "a", SizeBytes: 300, CachedAtEpoch: 1},
		model.CachedTrack{ID: "b", SizeBytes: 300, CachedAtEpoch: 2},
		model.CachedTrack{ID: "c", SizeBytes: 300, CachedAtEpoch: 3},
	)

	if err := store.EvictUntilFits(500, 1000); err != nil {
		t.Fatal(err)
	}

	total, _ := store.TotalCachedBytes()
	if total+500 > 1000 {
		t.Errorf("淘汰后 total+incoming=%d 超预算 1000", total+500)
	}
}

func TestEvictEverythingWhenBudgetTooSmall(t *testing.T) {
	store, _ := newTestStore(t,
		model.CachedTrack{ID: "a", SizeBytes: 100, CachedAtEpoch: 1},
		model.CachedTrack{ID: "b", SizeBytes: 100, CachedAtEpoch: 2},
	)

	// 新文件比整个预算还大：能淘汰的都淘汰掉，但必须正常返回不死循环
	if err := store.EvictUntilFits(5000, 1000); err != nil {
		t.Fatal(err)
	}

	total, _ := store.TotalCachedBytes()
	if total != 0 {
		t.Errorf("应淘汰所有条目, total=%d", total)
	}
}

func TestEvictSkipsUndeletableBlob(t *testing.T) {
	store, repo := newTestStore(t)

	// 用非空目录当blob路径，os.Remove会失败
	stuckDir := filepath.Join(store.Root(), "stuck.mp3")
	if err := os.MkdirAll(filepath.Join(stuckDir, "inner"), 0755); err != nil {
		t.Fatal(err)
	}
	repo.Upsert(&model.CachedTrack{
		ID: "stuck", IsCached: true, BlobPath: stuckDir, SizeBytes: 100, CachedAtEpoch: 1,
	})

	okPath := filepath.Join(store.Root(), "ok.mp3")
	os.WriteFile(okPath, make([]byte, 100), 0644)
	repo.Upsert(&model.CachedTrack{
		ID: "ok", IsCached: true, BlobPath: okPath, SizeBytes: 100, CachedAtEpoch: 2,
	})

	// 需要腾出全部200字节；删不掉的跳过，后面的照常淘汰
	if err := store.EvictUntilFits(1000, 1000); err != nil {
		t.Fatal(err)
	}

	stuck, _ := repo.GetByID("stuck")
	if !stuck.IsCached {
		t.Error("删除失败的条目不应清除元数据")
	}
	ok, _ := repo.GetByID("ok")
	if ok.IsCached {
		t.Error("后续条目应照常淘汰")
	}
}

func TestVerifyAndMaybeInvalidate(t *testing.T) {
	store, repo := newTestStore(t,
		model.CachedTrack{ID: "1", SizeBytes: 10, CachedAtEpoch: 1},
	)

	track, _ := store.Lookup("1")
	hit, err := store.VerifyAndMaybeInvalidate(track)
	if err != nil || !hit {
		t.Fatalf("文件存在应命中: hit=%v err=%v", hit, err)
	}

	// 外部删掉文件后：恰好失效一次，之后就是普通未命中
	os.Remove(track.BlobPath)

	track, _ = store.Lookup("1")
	hit, err = store.VerifyAndMaybeInvalidate(track)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("文件丢失应按未命中处理")
	}

	after, _ := repo.GetByID("1")
	if after.IsCached || after.BlobPath != "" {
		t.Errorf("失效后缓存字段应被清空: %+v", after)
	}
}

func TestRecordDownload(t *testing.T) {
	store, repo := newTestStore(t)

	track := &model.CachedTrack{
		ID: "1", Name: "晴天", Artist: "周杰伦",
		BlobPath: filepath.Join(store.Root(), "1.mp3"), SizeBytes: 100,
	}
	if err := store.RecordDownload(track); err != nil {
		t.Fatal(err)
	}

	saved, _ := repo.GetByID("1")
	if !saved.IsCached {
		t.Error("登记后应为已缓存")
	}
	if saved.CachedAtEpoch == 0 {
		t.Error("登记时应填充缓存时间")
	}

	// 重复下载同一首：原地更新
	track2 := &model.CachedTrack{ID: "1", Name: "晴天", SizeBytes: 200}
	if err := store.RecordDownload(track2); err != nil {
		t.Fatal(err)
	}
	saved, _ = repo.GetByID("1")
	if saved.SizeBytes != 200 {
		t.Errorf("重复下载应更新大小: %d", saved.SizeBytes)
	}
}

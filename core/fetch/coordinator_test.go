package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MuxYang/ncmbot/cache"
	"github.com/MuxYang/ncmbot/core/errs"
	"github.com/MuxYang/ncmbot/model"
)

// memRepo 测试用内存元数据表
type memRepo struct {
	mu sync.Mutex
	m  map[string]*model.CachedTrack
}

func newMemRepo() *memRepo { return &memRepo{m: make(map[string]*model.CachedTrack)} }

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

// stubResolver 固定返回同一个播放地址
type stubResolver struct {
	loc   *model.PlaybackLocation
	err   error
	delay time.Duration
	calls int32
}

func (s *stubResolver) ResolveURL(ctx context.Context, trackID string, bitrate int) (*model.PlaybackLocation, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.loc, s.err
}

func newTestStore(t *testing.T) (*cache.Store, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	store, err := cache.NewStore(repo, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store, repo
}

// newBlobServer 返回固定音频内容的下载服务，并计数命中次数
func newBlobServer(t *testing.T, body []byte, delay time.Duration) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestAcquireDownloadsOnMiss(t *testing.T) {
	store, repo := newTestStore(t)
	body := []byte("fake-mp3-bytes")
	srv, _ := newBlobServer(t, body, 0)

	resolver := &stubResolver{loc: &model.PlaybackLocation{
		URL: srv.URL, Bitrate: 320000, SizeBytes: int64(len(body)), Type: "mp3",
	}}
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	artifact, err := c.Acquire(context.Background(), model.SearchCandidate{ID: "186016", Name: "晴天", Artist: "周杰伦"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if artifact.FromCache {
		t.Error("首次获取不应命中缓存")
	}

	data, err := os.ReadFile(artifact.Path)
	if err != nil || string(data) != string(body) {
		t.Errorf("落盘内容不对: %v", err)
	}

	saved, _ := repo.GetByID("186016")
	if saved == nil || !saved.IsCached || saved.SizeBytes != int64(len(body)) {
		t.Errorf("元数据未正确登记: %+v", saved)
	}
}

func TestAcquireCacheHitSkipsNetwork(t *testing.T) {
	store, repo := newTestStore(t)

	blob := filepath.Join(store.Root(), "186016.mp3")
	os.WriteFile(blob, []byte("cached"), 0644)
	repo.Upsert(&model.CachedTrack{
		ID: "186016", IsCached: true, BlobPath: blob, SizeBytes: 6, CachedAtEpoch: 1,
	})

	resolver := &stubResolver{err: errors.New("不应发起网络调用")}
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	artifact, err := c.Acquire(context.Background(), model.SearchCandidate{ID: "186016"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !artifact.FromCache {
		t.Error("应命中缓存")
	}
	if atomic.LoadInt32(&resolver.calls) != 0 {
		t.Error("命中缓存时不应调用解析")
	}
}

func TestAcquireUnavailable(t *testing.T) {
	store, _ := newTestStore(t)
	resolver := &stubResolver{} // loc为nil：存在但不可播放
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	_, err := c.Acquire(context.Background(), model.SearchCandidate{ID: "186016"})
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestAcquireRejectsUnsafeID(t *testing.T) {
	store, _ := newTestStore(t)
	c := NewCoordinator(store, &stubResolver{}, 320000, 1<<20)

	for _, id := range []string{"", "../../etc/passwd", "a/b", "id with space", "id.mp3"} {
		_, err := c.Acquire(context.Background(), model.SearchCandidate{ID: id})
		var verr *errs.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("id=%q: err = %v, want ValidationError", id, err)
		}
	}
}

func TestConcurrentAcquireSingleDownload(t *testing.T) {
	store, _ := newTestStore(t)
	body := []byte("shared-download")
	// 人为放慢下载，让两个调用真正并发
	srv, hits := newBlobServer(t, body, 150*time.Millisecond)

	resolver := &stubResolver{
		loc:   &model.PlaybackLocation{URL: srv.URL, SizeBytes: int64(len(body)), Type: "mp3"},
		delay: 50 * time.Millisecond,
	}
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	var wg sync.WaitGroup
	results := make([]*Artifact, 2)
	callErrs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], callErrs[i] = c.Acquire(context.Background(), model.SearchCandidate{ID: "186016"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if callErrs[i] != nil {
			t.Fatalf("调用%d失败: %v", i, callErrs[i])
		}
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("同一首歌并发获取触发了%d次下载, want 1", n)
	}
	if results[0].Path != results[1].Path {
		t.Errorf("两个调用方应共享同一个文件: %s vs %s", results[0].Path, results[1].Path)
	}
}

func TestAcquireSurvivesInitiatorCancel(t *testing.T) {
	store, _ := newTestStore(t)
	body := []byte("keeps-going")
	// 下载放慢到200ms，留出中途取消的窗口
	srv, hits := newBlobServer(t, body, 200*time.Millisecond)

	resolver := &stubResolver{loc: &model.PlaybackLocation{
		URL: srv.URL, SizeBytes: int64(len(body)), Type: "mp3",
	}}
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var first, second *Artifact
	var firstErr, secondErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = c.Acquire(ctx, model.SearchCandidate{ID: "186016"})
	}()

	// 等发起方进入下载后，第二个调用方加入等待，随后取消发起方
	time.Sleep(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondErr = c.Acquire(context.Background(), model.SearchCandidate{ID: "186016"})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	// 下载一旦开始就跑到完成，发起方取消不拖垮任何等待者
	if firstErr != nil {
		t.Errorf("发起方不应失败: %v", firstErr)
	}
	if secondErr != nil {
		t.Errorf("等待者不应失败: %v", secondErr)
	}
	if first == nil || second == nil {
		t.Fatal("两个调用方都应拿到结果")
	}
	if data, err := os.ReadFile(second.Path); err != nil || string(data) != string(body) {
		t.Errorf("落盘内容不对: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("触发了%d次下载, want 1", n)
	}
}

func TestAcquireAfterExternalDelete(t *testing.T) {
	store, repo := newTestStore(t)
	body := []byte("refetched")
	srv, _ := newBlobServer(t, body, 0)

	blob := filepath.Join(store.Root(), "186016.mp3")
	os.WriteFile(blob, []byte("old"), 0644)
	repo.Upsert(&model.CachedTrack{
		ID: "186016", IsCached: true, BlobPath: blob, SizeBytes: 3, CachedAtEpoch: 1,
	})

	// 外部删掉缓存文件：按未命中处理一次，然后正常重新下载
	os.Remove(blob)

	resolver := &stubResolver{loc: &model.PlaybackLocation{
		URL: srv.URL, SizeBytes: int64(len(body)), Type: "mp3",
	}}
	c := NewCoordinator(store, resolver, 320000, 1<<20)

	artifact, err := c.Acquire(context.Background(), model.SearchCandidate{ID: "186016"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if artifact.FromCache {
		t.Error("文件丢失后应重新下载")
	}

	saved, _ := repo.GetByID("186016")
	if !saved.IsCached || saved.SizeBytes != int64(len(body)) {
		t.Errorf("重新下载后元数据应更新: %+v", saved)
	}
}

func TestAcquireEvictsToFitBudget(t *testing.T) {
	store, repo := newTestStore(t)
	body := make([]byte, 600)
	srv, _ := newBlobServer(t, body, 0)

	oldBlob := filepath.Join(store.Root(), "111.mp3")
	os.WriteFile(oldBlob, make([]byte, 600), 0644)
	repo.Upsert(&model.CachedTrack{
		ID: "111", IsCached: true, BlobPath: oldBlob, SizeBytes: 600, CachedAtEpoch: 1,
	})

	resolver := &stubResolver{loc: &model.PlaybackLocation{
		URL: srv.URL, SizeBytes: 600, Type: "mp3",
	}}
	// 预算1000放不下两个600，旧的要先被淘汰
	c := NewCoordinator(store, resolver, 320000, 1000)

	if _, err := c.Acquire(context.Background(), model.SearchCandidate{ID: "222"}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	old, _ := repo.GetByID("111")
	if old.IsCached {
		t.Error("旧条目应在下载前被淘汰")
	}
	if _, err := os.Stat(oldBlob); !os.IsNotExist(err) {
		t.Error("旧文件应被删除")
	}
}
